package filetree

import (
	"context"
	"errors"
	"fmt"

	"filetree-server/internal/models"

	"go.uber.org/zap"
)

const recycleBinAttempts = 3

// EnsureRecycleBin returns the owner's Recycle Bin, creating it on first use. A creation
// that loses a race against another request re-reads and reuses the winner's bin.
func (s *Service) EnsureRecycleBin(ctx context.Context, ownerID int64) (*models.Node, error) {
	for attempt := 0; attempt < recycleBinAttempts; attempt++ {
		bin, err := s.store.FindRecycleBin(ctx, ownerID)
		if err == nil {
			return bin, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		bin = &models.Node{
			OwnerID:     ownerID,
			Name:        models.RecycleBinName,
			Kind:        models.KindFolder,
			Tags:        []string{},
			Permissions: map[string]models.AccessLevel{},
		}
		err = s.insert(ctx, bin)
		if err == nil {
			s.logger.Info("recycle bin created", zap.Int64("owner_id", ownerID), zap.String("node_id", bin.ID))
			return bin, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		recycleBinRacesTotal.Inc()
		s.logger.Debug("recycle bin creation raced, retrying", zap.Int64("owner_id", ownerID), zap.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("%w: could not resolve the Recycle Bin of owner %d", ErrConflict, ownerID)
}
