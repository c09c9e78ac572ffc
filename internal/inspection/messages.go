package inspection

import "fmt"

const (
	reasonUnparsable         = "申請内容の解析に失敗しました。もう一度ご入力ください。"
	reasonNationalityDenied  = "申請された国籍は安全保障上の理由から入国を許可することができないため、却下します。"
	reasonIdentityDenied     = "申請されたMCIDは安全保障上の理由から入国を許可することができないため、却下します。"
	reasonSponsorUnreachable = "合流者チェックの通信に失敗しました。ネットワークをご確認ください。"
	reasonMissingFields      = "申請情報に不足があります。全項目を入力してください。"
)

func reasonIdentityUnverified(handle string) string {
	return fmt.Sprintf("申請者MCID「%s」のアカウントチェックが出来ませんでした。綴りにお間違いはございませんか？", handle)
}

func reasonCompanionDenied(handle string) string {
	return fmt.Sprintf("同行者「%s」は安全保障上の理由から入国を許可することができないため、却下します。", handle)
}

func reasonCompanionUnverified(handle string) string {
	return fmt.Sprintf("同行者MCID「%s」のアカウントチェックが出来ませんでした。綴りにお間違いはございませんか？", handle)
}

func reasonCompanionNationality(handle string) string {
	return fmt.Sprintf("同行者「%s」は申請者と国籍が異なるため承認できません。国籍が異なる場合、それぞれご申告ください。", handle)
}

func reasonStayTooLong(maxDays int) string {
	return fmt.Sprintf("申請期間が長すぎるため却下します（申請期間が%d日を超える場合、%d日で申請後、申請が切れる前に再審査をお願いいたします。）", maxDays, maxDays)
}
