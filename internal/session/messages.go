package session

import (
	"fmt"
	"strings"

	"github.com/foxseedlab/nyukoku/internal/application"
	"github.com/foxseedlab/nyukoku/internal/discord"
	"github.com/foxseedlab/nyukoku/internal/verifier"
)

const (
	colorResult  = 0x3498db
	colorPublish = 0x27ae60
)

const (
	messageIntroTitle       = "自動入国審査システムです。"
	messageIntroDescription = "こちらのチケットでは、旅行、取引、労働等を行うために一時的に入国を希望される方に対し、許可証を自動で発行しております。\n" +
		"審査は24時間365日いつでも受けられ、最短数分で許可証が発行されます。\n" +
		"以下の留意事項をよくお読みの上、次に進む場合は「進む」、申請を希望しない場合は「終了」をクリックしてください。"
	messageIntroNotes = "・入国が承認されている期間中、申告内容に誤りがあることが判明したり、法令に違反した場合は承認が取り消されることがあります。\n" +
		"・法令の不知は理由に抗弁できません。\n" +
		"・損害を与えた場合、行政省庁は相当の対応を行う可能性があります。\n" +
		"・入国情報は適切な範囲で国民に共有されます。"

	messageAlreadyInProgress = "既に申請が進行中です。表示されている案内に沿って入力を続けてください。"
	messageEditionPrompt     = "ゲームエディションを選択してください。"
	messageEditionHolder     = "どちらのゲームエディションですか？"
	messageIdentityPrompt    = "MCID又はゲームタグを入力してください。(\"BE_\"を付ける必要はありません。)"
	messageNationalityPrompt = "国籍を入力してください。"
	messagePeriodPrompt      = "一時入国期間と目的を入力してください。（例: 観光で10日間）"
	messageCompanionsPrompt  = "同じ国籍で同行者がいる場合、MCIDをカンマ区切りで入力してください（例:user1,BE_user2）。いなければ「なし」と入力してください。"
	messageSponsorPrompt     = "入国後に合流する国民がいる場合はお名前(MCID, Discord ID等)を、いなければ「なし」と入力してください。"
	messageConfirmPrompt     = "以下の内容で審査を実行しますか？"

	messageCancelled        = "申請をキャンセルしました。"
	messageInspecting       = "申請内容を確認中…"
	messageInspectionBusy   = "審査を実行中です。しばらくお待ちください。"
	messageInspectionFailed = "審査中にエラーが発生しました。時間をおいて再度「確定」を押してください。"
	messageTimedOut         = "⏳ 60秒間応答がなかったため、処理をタイムアウトで中断しました。再度申請してください。"
	messageSponsorWait      = "申請を受け付けました。しばらくお待ちください。"
	messageSponsorRejected  = "合流者から申請内容の確認が得られなかったため、却下します。"
	messageSponsorExpired   = "合流者の確認が期限内に得られなかったため、却下します。再度申請してください。"
	messageIdleTimeout      = "一定時間操作がなかったため、申請を終了しました。再度申請する場合は最初からやり直してください。"

	messageSessionNotFound   = "このセッションは存在しないか期限切れです。最初からやり直してください。"
	messageNotOwner          = "あなた以外は操作できません。"
	messageUnsupportedAction = "その操作にはまだ対応していません。"
	messageGenericError      = "エラーが発生しました。"

	messageSponsorThanks  = "回答ありがとうございました。"
	messageSponsorInvalid = "この確認は既に終了しているか、無効です。"

	messageApprovalNotes = "・在留期間の延長が予定される場合、速やかにこのチャンネルでお知らせください。合計%d日を超える場合は再申請が必要です。\n" +
		"・申請内容に誤りがあった場合や法令違反時は承認が取り消される場合があります。\n" +
		"・あなたの入国情報は適切な範囲で国民に共有されます。"

	noneLabel = "なし"
)

const (
	actionStart   = "start"
	actionCancel  = "cancel"
	actionEdition = "edition"
	actionConfirm = "confirm"
	actionEdit    = "edit"
)

func introMessage(sessionID string) discord.Message {
	return discord.Message{
		Embeds: []discord.Embed{{
			Title:       messageIntroTitle,
			Description: messageIntroDescription,
			Fields:      []discord.EmbedField{{Name: "【留意事項】", Value: messageIntroNotes}},
		}},
		Buttons: []discord.Button{
			{CustomID: discord.CustomID(actionStart, sessionID), Label: "進む", Style: discord.ButtonSuccess},
			{CustomID: discord.CustomID(actionCancel, sessionID), Label: "終了", Style: discord.ButtonDanger},
		},
	}
}

func editionMessage(sessionID string) discord.Message {
	return discord.Message{
		Content: messageEditionPrompt,
		Select: &discord.SelectMenu{
			CustomID:    discord.CustomID(actionEdition, sessionID),
			Placeholder: messageEditionHolder,
			Options: []discord.SelectOption{
				{Label: "Java", Value: string(verifier.EditionJava)},
				{Label: "Bedrock", Value: string(verifier.EditionBedrock)},
			},
		},
		Buttons: []discord.Button{cancelButton(sessionID)},
	}
}

func cancelButton(sessionID string) discord.Button {
	return discord.Button{CustomID: discord.CustomID(actionCancel, sessionID), Label: "キャンセル", Style: discord.ButtonDanger}
}

// promptFor is the question asked when a session enters state.
func promptFor(state State) string {
	switch state {
	case StateIdentityInput:
		return messageIdentityPrompt
	case StateNationalityInput:
		return messageNationalityPrompt
	case StatePeriodInput:
		return messagePeriodPrompt
	case StateCompanionsInput:
		return messageCompanionsPrompt
	case StateSponsorInput:
		return messageSponsorPrompt
	default:
		return ""
	}
}

func confirmMessage(sessionID string, a Answers) discord.Message {
	summary := strings.Join([]string{
		fmt.Sprintf("ゲームバージョン: %s", a.Edition),
		fmt.Sprintf("MCID: %s", a.Identity),
		fmt.Sprintf("国籍: %s", a.Nationality),
		fmt.Sprintf("期間: %s", a.Period),
		fmt.Sprintf("同行者: %s", joinOrNone(a.Companions)),
		fmt.Sprintf("合流者: %s", joinOrNone(a.Sponsors)),
	}, "\n")
	return discord.Message{
		Content: messageConfirmPrompt + "\n" + summary,
		Buttons: confirmButtons(sessionID),
	}
}

func confirmButtons(sessionID string) []discord.Button {
	return []discord.Button{
		{CustomID: discord.CustomID(actionConfirm, sessionID), Label: "確定", Style: discord.ButtonPrimary},
		{CustomID: discord.CustomID(actionEdit, sessionID), Label: "修正", Style: discord.ButtonSecondary},
		cancelButton(sessionID),
	}
}

// submissionText is the free text handed to the extractor.
func submissionText(a Answers) string {
	lines := []string{
		fmt.Sprintf("MCID: %s", a.Identity),
		fmt.Sprintf("国籍: %s", a.Nationality),
		fmt.Sprintf("目的・期間: %s", a.Period),
	}
	if len(a.Companions) > 0 {
		lines = append(lines, fmt.Sprintf("同行者: %s", strings.Join(a.Companions, ", ")))
	}
	if len(a.Sponsors) > 0 {
		lines = append(lines, fmt.Sprintf("合流者: %s", strings.Join(a.Sponsors, ", ")))
	}
	return strings.Join(lines, "\n")
}

func approvalMessage(app *application.Application, date string, maxStayDays int) discord.Message {
	return discord.Message{
		Embeds: []discord.Embed{{
			Title:       "一時入国審査結果",
			Color:       colorResult,
			Description: "自動入国審査システムです。\n> 審査結果：**承認**",
			Fields: []discord.EmbedField{
				{Name: "申請者", Value: app.Identity, Inline: true},
				{Name: "申請日", Value: date, Inline: true},
				{Name: "入国目的", Value: app.Purpose, Inline: true},
				{Name: "入国期間", Value: periodLabel(app)},
				{Name: "同行者", Value: joinOrNone(app.CompanionIdentities())},
				{Name: "合流者", Value: joinOrNone(app.Sponsors)},
				{Name: "【留意事項】", Value: fmt.Sprintf(messageApprovalNotes, maxStayDays)},
			},
		}},
	}
}

func publicationMessage(app *application.Application, date string) discord.Message {
	return discord.Message{
		Embeds: []discord.Embed{{
			Title:       "【一時入国審査に係る入国者の公示】",
			Color:       colorPublish,
			Description: "以下の外国籍プレイヤーの入国が承認された為、以下の通り公示いたします。",
			Fields: []discord.EmbedField{
				{Name: "申請者", Value: app.Identity, Inline: true},
				{Name: "国籍", Value: app.Nationality, Inline: true},
				{Name: "申請日", Value: date, Inline: true},
				{Name: "入国目的", Value: app.Purpose, Inline: true},
				{Name: "入国期間", Value: periodLabel(app)},
				{Name: "同行者", Value: joinOrNone(app.CompanionIdentities())},
				{Name: "合流者", Value: joinOrNone(app.Sponsors)},
			},
		}},
	}
}

func statusMessage(openSessions, openRounds int) discord.Message {
	return discord.Message{
		Embeds: []discord.Embed{{
			Title: "管理レポート",
			Fields: []discord.EmbedField{
				{Name: "未完了セッション数", Value: fmt.Sprintf("%d", openSessions)},
				{Name: "合流者確認待ち", Value: fmt.Sprintf("%d", openRounds)},
			},
		}},
	}
}

func auditNotice(sessionID string, state State) string {
	return fmt.Sprintf("セッション %s が %s しました。詳細ログを添付します。", sessionID, outcomeLabel(state))
}

func auditFilename(threadID string) string {
	return fmt.Sprintf("%s-一時入国審査.txt", threadID)
}

func periodLabel(app *application.Application) string {
	return fmt.Sprintf("%s ～ %s", app.Start, app.End)
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return noneLabel
	}
	return strings.Join(values, ", ")
}

var noneAnswers = map[string]struct{}{
	"なし":   {},
	"ナシ":   {},
	"無し":   {},
	"none": {},
}

// parseList splits a comma separated answer. A "none" answer yields nil.
func parseList(text string) []string {
	text = strings.TrimSpace(text)
	if _, ok := noneAnswers[strings.ToLower(text)]; ok {
		return nil
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '、' || r == '，'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
