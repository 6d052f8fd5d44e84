// Package graph reads the social graph: who follows whom, and whether a
// followed user is a celebrity. The follow edges themselves are owned by
// the wider application; this subsystem only ever reads them.
package graph

import (
	"context"

	"github.com/bharti-cmyk/instagram/models"
	"github.com/samber/lo"
)

// Reader resolves follow edges. Implemented by db.DB.
type Reader interface {
	Followees(ctx context.Context, userID int64) ([]models.Followee, error)
	FollowerIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Partition splits followees into celebrity and normal id slices. The
// celebrity ids drive the pull path; normal ids only matter in that their
// posts were already pushed to the caller's timeline cache at write time.
func Partition(followees []models.Followee) (celebIDs []int64, normalIDs []int64) {
	celebs, normals := lo.FilterReject(followees, func(f models.Followee, _ int) bool {
		return f.IsCelebrity
	})

	toID := func(f models.Followee, _ int) int64 { return f.ID }
	return lo.Map(celebs, toID), lo.Map(normals, toID)
}
