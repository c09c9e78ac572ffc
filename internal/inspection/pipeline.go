// Package inspection turns a submitted answer set into a Verdict.
package inspection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/nyukoku/internal/application"
	"github.com/foxseedlab/nyukoku/internal/denylist"
	"github.com/foxseedlab/nyukoku/internal/extractor"
	"github.com/foxseedlab/nyukoku/internal/metrics"
	"github.com/foxseedlab/nyukoku/internal/sponsor"
	"github.com/foxseedlab/nyukoku/internal/verifier"
)

// ErrExternalService wraps collaborator failures that are not policy outcomes.
var ErrExternalService = errors.New("external service failure")

// Check names the step that produced a rejection.
type Check string

const (
	CheckExtraction        Check = "extraction"
	CheckNationalityDenied Check = "nationality_denylist"
	CheckIdentityDenied    Check = "identity_denylist"
	CheckIdentityExists    Check = "identity_exists"
	CheckCompanion         Check = "companion"
	CheckSponsorRegistry   Check = "sponsor_registry"
	CheckStayDuration      Check = "stay_duration"
	CheckRequiredFields    Check = "required_fields"
)

// Submission is what the workflow hands over on confirm.
type Submission struct {
	Edition verifier.Edition
	Text    string
}

// Verdict carries Reason on rejection and Application on approval. A verdict with
// PendingSponsorIDs is provisional.
type Verdict struct {
	Approved          bool
	Reason            string
	Check             Check
	Application       *application.Application
	PendingSponsorIDs []string

	// Trace lines for the session audit log.
	Trace []string
}

func (v Verdict) PendingSponsors() bool {
	return len(v.PendingSponsorIDs) > 0
}

type Inspector interface {
	Run(ctx context.Context, sub Submission) (Verdict, error)
}

type Pipeline struct {
	extractor   extractor.Extractor
	denyList    denylist.Checker
	verifier    verifier.Verifier
	registry    sponsor.Registry
	metrics     *metrics.Metrics
	maxStayDays int
	loc         *time.Location
}

type Params struct {
	Extractor   extractor.Extractor
	DenyList    denylist.Checker
	Verifier    verifier.Verifier
	Registry    sponsor.Registry
	Metrics     *metrics.Metrics
	MaxStayDays int
	Location    *time.Location
}

func NewPipeline(p Params) *Pipeline {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{
		extractor:   p.Extractor,
		denyList:    p.DenyList,
		verifier:    p.Verifier,
		registry:    p.Registry,
		metrics:     p.Metrics,
		maxStayDays: p.MaxStayDays,
		loc:         loc,
	}
}

// Run applies the checks in order and stops at the first rejection. Policy outcomes
// are returned as verdicts; only collaborator outages and context errors are returned
// as errors.
func (p *Pipeline) Run(ctx context.Context, sub Submission) (Verdict, error) {
	started := time.Now()
	v, err := p.run(ctx, sub)
	p.metrics.ObserveInspectionLatency(time.Since(started))

	switch {
	case err != nil:
		p.metrics.IncrementOutcome("error")
	case v.Approved:
		p.metrics.IncrementOutcome("approved")
	case v.PendingSponsors():
		p.metrics.IncrementOutcome("pending")
	default:
		p.metrics.IncrementOutcome("rejected")
		p.metrics.IncrementRejection(string(v.Check))
	}
	return v, err
}

func (p *Pipeline) run(ctx context.Context, sub Submission) (Verdict, error) {
	var trace []string
	reject := func(check Check, reason string) (Verdict, error) {
		trace = append(trace, fmt.Sprintf("却下 (%s)", check))
		return Verdict{Reason: reason, Check: check, Trace: trace}, nil
	}

	app, err := p.extractor.Extract(ctx, sub.Text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		slog.Warn("application extraction failed", "error", err)
		trace = append(trace, fmt.Sprintf("整形エラー: %v", err))
		return reject(CheckExtraction, reasonUnparsable)
	}
	trace = append(trace, fmt.Sprintf("整形結果: %s", summarize(app)))

	if listed, err := p.isListed(ctx, denylist.Nationality, app.Nationality); err != nil {
		return Verdict{}, err
	} else if listed {
		trace = append(trace, fmt.Sprintf("＜拒否リスト(国籍)該当＞ %s", app.Nationality))
		return reject(CheckNationalityDenied, reasonNationalityDenied)
	}

	edition, handle := verifier.Normalize(sub.Edition, app.Identity)
	if listed, err := p.isListed(ctx, denylist.Identity, app.Identity, handle); err != nil {
		return Verdict{}, err
	} else if listed {
		trace = append(trace, fmt.Sprintf("＜拒否リスト(MCID)該当＞ %s", app.Identity))
		return reject(CheckIdentityDenied, reasonIdentityDenied)
	}

	if handle != "" && !p.verifier.Exists(ctx, edition, handle) {
		trace = append(trace, fmt.Sprintf("アカウント未確認: %s (%s)", handle, edition))
		return reject(CheckIdentityExists, reasonIdentityUnverified(app.Identity))
	}

	for _, c := range app.Companions {
		if c.Identity == "" {
			continue
		}
		companionEdition, companionHandle := verifier.Normalize(sub.Edition, c.Identity)
		if listed, err := p.isListed(ctx, denylist.Identity, c.Identity, companionHandle); err != nil {
			return Verdict{}, err
		} else if listed {
			trace = append(trace, fmt.Sprintf("＜拒否リスト(同行者)該当＞ %s", c.Identity))
			return reject(CheckCompanion, reasonCompanionDenied(c.Identity))
		}
		if !p.verifier.Exists(ctx, companionEdition, companionHandle) {
			trace = append(trace, fmt.Sprintf("同行者アカウント未確認: %s (%s)", companionHandle, companionEdition))
			return reject(CheckCompanion, reasonCompanionUnverified(c.Identity))
		}
		if c.Nationality != "" && app.Nationality != "" && !strings.EqualFold(c.Nationality, app.Nationality) {
			trace = append(trace, fmt.Sprintf("同行者国籍不一致: %s (%s)", c.Identity, c.Nationality))
			return reject(CheckCompanion, reasonCompanionNationality(c.Identity))
		}
	}

	var sponsorIDs []string
	if len(app.Sponsors) > 0 {
		matched, err := p.registry.Match(ctx, app.Sponsors)
		if err != nil {
			slog.Warn("sponsor registry lookup failed", "error", err)
			trace = append(trace, fmt.Sprintf("合流者照会エラー: %v", err))
			return reject(CheckSponsorRegistry, reasonSponsorUnreachable)
		}
		sponsorIDs = resolveSponsors(app.Sponsors, matched)
		trace = append(trace, fmt.Sprintf("合流者照会: %d/%d 件一致", len(sponsorIDs), len(app.Sponsors)))
	}

	if check, reason, ok := p.businessRules(app); !ok {
		return reject(check, reason)
	}

	if len(sponsorIDs) > 0 {
		app.SponsorIDs = sponsorIDs
		trace = append(trace, "合流者確認待ち")
		return Verdict{Application: app, PendingSponsorIDs: sponsorIDs, Trace: trace}, nil
	}

	trace = append(trace, "承認")
	return Verdict{Approved: true, Application: app, Trace: trace}, nil
}

// businessRules checks the stay length before field completeness so an over-long
// stay is always reported as such.
func (p *Pipeline) businessRules(app *application.Application) (Check, string, bool) {
	if app.Start != "" && app.End != "" {
		stay, err := app.Stay(p.loc)
		if err != nil {
			return CheckRequiredFields, reasonMissingFields, false
		}
		if stay > time.Duration(p.maxStayDays)*24*time.Hour {
			return CheckStayDuration, reasonStayTooLong(p.maxStayDays), false
		}
	}
	if len(app.MissingRequired()) > 0 {
		return CheckRequiredFields, reasonMissingFields, false
	}
	return "", "", true
}

// isListed reports whether any non-empty value is on the deny-list.
func (p *Pipeline) isListed(ctx context.Context, category denylist.Category, values ...string) (bool, error) {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		listed, err := p.denyList.IsListed(ctx, category, v)
		if err != nil {
			return false, fmt.Errorf("%w: deny-list lookup: %w", ErrExternalService, err)
		}
		if listed {
			return true, nil
		}
	}
	return false, nil
}

// resolveSponsors keeps declared order, drops unmatched names and duplicate ids.
func resolveSponsors(names []string, matched map[string]string) []string {
	var ids []string
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		id, ok := matched[sponsor.NormalizeName(name)]
		if !ok || id == "" {
			slog.Debug("sponsor name did not resolve", "name", name)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func summarize(app *application.Application) string {
	companions := app.CompanionIdentities()
	return fmt.Sprintf("mcid=%s nation=%s purpose=%s start=%s end=%s companions=[%s] joiners=[%s]",
		app.Identity, app.Nationality, app.Purpose, app.Start, app.End,
		strings.Join(companions, ","), strings.Join(app.Sponsors, ","))
}
