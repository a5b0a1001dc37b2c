package usecase

import (
	"context"
	"fmt"
	"strings"

	"zarigaas/internal/aggregate"
	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/internal/infrastructure/ratelimit"
	"zarigaas/internal/normalize"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

type RecordPitchInput struct {
	ProductID     string   `json:"productId" validate:"required,max=128"`
	Name          string   `json:"name" validate:"max=120"`
	Email         string   `json:"email" validate:"omitempty,email"`
	Phone         string   `json:"phone" validate:"max=32"`
	Message       string   `json:"message" validate:"max=4000"`
	ProposedPrice *float64 `json:"proposedPrice" validate:"omitempty,gt=0"`
	// ClientToken makes retries of one submission land on the same pitch.
	ClientToken string `json:"clientToken" validate:"omitempty,max=128,excludesall=/"`
}

// RecordPitch stores a pitch and increments the product's pitch counter in
// one transaction. A retry with the same client token returns the pitch
// already recorded and never increments twice.
func (wc *WriteCoordinator) RecordPitch(ctx context.Context, authorID string, input RecordPitchInput) (*entity.Pitch, error) {
	if authorID == "" {
		return nil, errors.Unauthorized("Sign in required", nil)
	}
	input.Message = strings.TrimSpace(input.Message)
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if err := wc.check(input); err != nil {
		return nil, err
	}
	if input.Message == "" && input.ProposedPrice == nil {
		return nil, errors.Validation("Add a message or a proposed price", nil)
	}
	if err := wc.allow(authorID, ratelimit.ActionRecordPitch); err != nil {
		return nil, err
	}

	pitchID := input.ClientToken
	if pitchID == "" {
		pitchID = wc.newID()
	}

	var pitch *entity.Pitch
	err := wc.run(ctx, "record pitch", func(ctx context.Context) error {
		if existing, err := wc.existingPitch(ctx, pitchID); err != nil || existing != nil {
			pitch = existing
			return err
		}

		productDoc, err := wc.store.Get(ctx, repository.CollectionProducts, input.ProductID)
		if err != nil {
			return err
		}
		product, _ := normalize.Product(productDoc, wc.now())

		p := entity.Pitch{
			ID:            pitchID,
			ProductID:     product.ID,
			ProductName:   product.Name,
			AuthorUserID:  authorID,
			Name:          input.Name,
			Email:         input.Email,
			Phone:         input.Phone,
			Message:       input.Message,
			ProposedPrice: input.ProposedPrice,
			Status:        entity.PitchPending,
			CreatedAt:     wc.now(),
		}

		counter := normalize.ProductAliases.StoredField(productDoc.Data, "pitchCount")
		err = wc.store.CreateAndUpdate(ctx,
			repository.Write{Collection: repository.CollectionPitches, ID: pitchID, Data: pitchData(p)},
			repository.Write{Collection: repository.CollectionProducts, ID: product.ID, Data: map[string]interface{}{
				counter: repository.Increment(1),
			}},
		)
		if errors.Is(err, errors.CodeAlreadyExists) {
			// A concurrent retry won the race.
			existing, getErr := wc.existingPitch(ctx, pitchID)
			if getErr == nil && existing != nil {
				pitch = existing
				return nil
			}
		}
		if err != nil {
			return err
		}
		pitch = &p
		return nil
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionPitches, "record", pitchID, err)
		return nil, err
	}
	logger.Info("Pitch %s recorded for product %s", pitch.ID, pitch.ProductID)
	return pitch, nil
}

func (wc *WriteCoordinator) existingPitch(ctx context.Context, id string) (*entity.Pitch, error) {
	doc, err := wc.store.Get(ctx, repository.CollectionPitches, id)
	if errors.Is(err, errors.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, _ := normalize.Pitch(doc, wc.now())
	return &p, nil
}

func pitchData(p entity.Pitch) map[string]interface{} {
	w := normalize.PitchAliases.Write
	data := map[string]interface{}{
		w("productId"):    p.ProductID,
		w("productName"):  p.ProductName,
		w("authorUserId"): p.AuthorUserID,
		w("message"):      p.Message,
		w("status"):       string(p.Status),
		w("createdAt"):    repository.ServerTimestamp,
		w("updatedAt"):    repository.ServerTimestamp,
	}
	if p.Name != "" {
		data[w("name")] = p.Name
	}
	if p.Email != "" {
		data[w("email")] = p.Email
	}
	if p.Phone != "" {
		data[w("phone")] = p.Phone
	}
	if p.ProposedPrice != nil {
		data[w("proposedPrice")] = *p.ProposedPrice
	}
	return data
}

// UpdatePitchStatus moves a pending pitch to approved or rejected. Setting
// the current status again is a no-op; any other transition is refused.
func (wc *WriteCoordinator) UpdatePitchStatus(ctx context.Context, actor entity.Actor, pitchID string, status entity.PitchStatus) (*entity.Pitch, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	if pitchID == "" {
		return nil, errors.Validation("Pitch id is required", nil)
	}
	if !entity.ValidPitchStatus(status) {
		return nil, errors.Validation(fmt.Sprintf("Unknown pitch status %q", status), nil)
	}

	var pitch entity.Pitch
	err := wc.run(ctx, "update pitch status", func(ctx context.Context) error {
		doc, err := wc.store.Get(ctx, repository.CollectionPitches, pitchID)
		if err != nil {
			return err
		}
		pitch, _ = normalize.Pitch(doc, wc.now())
		if pitch.Status == status {
			return nil
		}
		if !entity.CanTransition(pitch.Status, status) {
			return errors.Conflict(fmt.Sprintf("Pitch cannot move from %s to %s", pitch.Status, status))
		}

		// The write only lands while the status is still the one checked
		// above, so concurrent reviews cannot overturn each other.
		field := normalize.PitchAliases.StoredField(doc.Data, "status")
		err = wc.store.UpdateIf(ctx, repository.CollectionPitches, pitchID, field, doc.Data[field], map[string]interface{}{
			field: string(status),
			normalize.PitchAliases.Write("updatedAt"): repository.ServerTimestamp,
		})
		if errors.Is(err, errors.CodeConflict) {
			return errors.Conflict("Pitch was reviewed concurrently, reload and try again")
		}
		if err != nil {
			return err
		}
		pitch.Status = status
		pitch.UpdatedAt = wc.now()
		return nil
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionPitches, "update_status", pitchID, err)
		return nil, err
	}
	return &pitch, nil
}

type ReconcileResult struct {
	Drift     []entity.DriftEntry `json:"drift"`
	Corrected int                 `json:"corrected"`
}

// ReconcilePitchCounts compares stored counters with the pitch documents
// and raises counters that fell behind. Counters never move down.
func (wc *WriteCoordinator) ReconcilePitchCounts(ctx context.Context, actor entity.Actor) (*ReconcileResult, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	err := wc.run(ctx, "reconcile pitch counts", func(ctx context.Context) error {
		productDocs, err := wc.store.Find(ctx, repository.NewQuery(repository.CollectionProducts))
		if err != nil {
			return err
		}
		pitchDocs, err := wc.store.Find(ctx, repository.NewQuery(repository.CollectionPitches))
		if err != nil {
			return err
		}

		now := wc.now()
		raw := make(map[string]map[string]interface{}, len(productDocs))
		products := make([]entity.Product, 0, len(productDocs))
		for _, doc := range productDocs {
			p, _ := normalize.Product(doc, now)
			products = append(products, p)
			raw[doc.ID] = doc.Data
		}
		pitches := make([]entity.Pitch, 0, len(pitchDocs))
		for _, doc := range pitchDocs {
			p, _ := normalize.Pitch(doc, now)
			pitches = append(pitches, p)
		}

		result.Drift = aggregate.CounterDrift(products, pitches)
		for _, d := range result.Drift {
			if d.CountedCount <= d.StoredCount {
				logger.Warn("Product %s counter %d is above its %d pitches, leaving it", d.ProductID, d.StoredCount, d.CountedCount)
				continue
			}
			field := normalize.ProductAliases.StoredField(raw[d.ProductID], "pitchCount")
			err := wc.store.Update(ctx, repository.CollectionProducts, d.ProductID, map[string]interface{}{
				field: repository.Increment(int64(d.CountedCount - d.StoredCount)),
			})
			if err != nil {
				logger.LogWriteError(repository.CollectionProducts, "reconcile", d.ProductID, err)
				return err
			}
			result.Corrected++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Pitch counter reconcile: %d drifted, %d corrected", len(result.Drift), result.Corrected)
	return result, nil
}
