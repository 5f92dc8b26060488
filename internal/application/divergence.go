package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/panelsync/internal/domain/model"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
)

// DivergenceDetector compares local and remote account identities without
// modifying either side.
type DivergenceDetector struct {
	accounts driven.AccountStore
	panel    driven.PanelClient
	timeout  time.Duration
	now      func() time.Time
}

// NewDivergenceDetector creates a DivergenceDetector. timeout caps the remote
// listing.
func NewDivergenceDetector(accounts driven.AccountStore, panel driven.PanelClient, timeout time.Duration) *DivergenceDetector {
	return &DivergenceDetector{
		accounts: accounts,
		panel:    panel,
		timeout:  timeout,
		now:      time.Now,
	}
}

// DetectDivergences lists both sides concurrently and reports usernames
// present on only one side. If either listing fails the report has
// HasDivergences false and the error is returned; callers must not treat that
// as "in sync".
func (d *DivergenceDetector) DetectDivergences(ctx context.Context) (model.DivergenceReport, error) {
	var (
		local  []model.Account
		remote []model.RemoteAccount
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		local, err = d.accounts.ListLocalAccounts(gctx)
		if err != nil {
			return fmt.Errorf("listing local accounts: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		rctx, cancel := context.WithTimeout(gctx, d.timeout)
		defer cancel()

		var err error
		remote, err = d.panel.ListRemoteAccounts(rctx)
		if err != nil {
			return fmt.Errorf("listing remote accounts: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.DivergenceReport{CheckedAt: d.now()}, err
	}

	return buildDivergenceReport(local, remote, d.now()), nil
}

func buildDivergenceReport(local []model.Account, remote []model.RemoteAccount, checkedAt time.Time) model.DivergenceReport {
	localSet := make(map[string]struct{}, len(local))
	for _, a := range local {
		localSet[a.Username] = struct{}{}
	}

	remoteSet := make(map[string]struct{}, len(remote))
	for _, a := range remote {
		remoteSet[a.Username] = struct{}{}
	}

	missingLocally := []string{}
	for username := range remoteSet {
		if _, ok := localSet[username]; !ok {
			missingLocally = append(missingLocally, username)
		}
	}

	missingRemotely := []string{}
	for username := range localSet {
		if _, ok := remoteSet[username]; !ok {
			missingRemotely = append(missingRemotely, username)
		}
	}

	sort.Strings(missingLocally)
	sort.Strings(missingRemotely)

	count := len(missingLocally) + len(missingRemotely)
	return model.DivergenceReport{
		HasDivergences:  count > 0,
		Count:           count,
		MissingLocally:  missingLocally,
		MissingRemotely: missingRemotely,
		LocalCount:      len(localSet),
		RemoteCount:     len(remoteSet),
		CheckedAt:       checkedAt,
	}
}
