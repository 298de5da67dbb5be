// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"

	"github.com/veriscope/veriscope-api/internal/http/mw"
)

// getUserID extracts the authenticated user's id from context.
func getUserID(ctx context.Context) string {
	user := mw.GetUser(ctx)
	if user == nil {
		return ""
	}
	return user.ID
}
