package nava

import (
	"context"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/imaging"
	"github.com/vango-go/nava/pkg/core/types"
)

const (
	thumbnailMaxDimension = 256
	thumbnailQuality      = 70
)

// RemoteHistory records projects in the signed-in account. It satisfies the
// flow controller's HistoryRecorder and ProfileLoader.
type RemoteHistory struct {
	accounts *AccountsService
}

// History returns the account-backed project history.
func (c *Client) History() *RemoteHistory {
	return &RemoteHistory{accounts: c.Accounts}
}

// SaveProject records plan as an in-progress project with a small thumbnail.
func (h *RemoteHistory) SaveProject(ctx context.Context, plan *types.Plan, thumbnail *types.Image) (types.ProjectHistory, error) {
	if plan == nil {
		return types.ProjectHistory{}, core.NewInvalidRequestErrorWithParam("plan is required", "plan")
	}
	req := types.HistoryRequest{Title: plan.Title, Difficulty: plan.Difficulty}
	if thumbnail != nil && !thumbnail.IsZero() {
		small, err := imaging.Normalize(*thumbnail, imaging.Options{MaxDimension: thumbnailMaxDimension, Quality: thumbnailQuality})
		if err == nil {
			req.Thumbnail = small.DataURI()
		}
	}
	return h.accounts.AddHistory(ctx, req)
}

func (h *RemoteHistory) MarkComplete(ctx context.Context, id string) error {
	return h.accounts.CompleteHistory(ctx, id)
}

// GetProfile ignores userID: the session decides whose profile is read.
func (h *RemoteHistory) GetProfile(ctx context.Context, _ string) (*types.UserProfile, error) {
	return h.accounts.Profile(ctx)
}
