package usecase

import (
	"context"
	"strings"

	"zarigaas/internal/domain/entity"
	"zarigaas/internal/domain/repository"
	"zarigaas/internal/normalize"
	"zarigaas/pkg/errors"
	"zarigaas/pkg/logger"
)

type ProductInput struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=5000"`
	ImageURL    string           `json:"imageUrl" validate:"omitempty,url"`
	Category    string           `json:"category" validate:"max=80"`
	PriceType   entity.PriceType `json:"priceType" validate:"required,oneof=fixed request"`
	Price       *float64         `json:"price" validate:"omitempty,gte=0"`
	StockLevel  int              `json:"stockLevel" validate:"gte=0"`
}

func (wc *WriteCoordinator) checkProduct(input *ProductInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Category = strings.TrimSpace(input.Category)
	if err := wc.check(*input); err != nil {
		return err
	}
	if input.PriceType == entity.PriceFixed && input.Price == nil {
		return errors.Validation("Fixed price products need a price", nil)
	}
	if input.PriceType == entity.PriceRequest {
		input.Price = nil
	}
	return nil
}

// productFields maps input onto stored field names. Existing documents keep
// the spellings they already use. The pitch counter is never part of it.
func productFields(existing map[string]interface{}, input ProductInput) map[string]interface{} {
	name := normalize.ProductAliases.StoredField
	fields := map[string]interface{}{
		name(existing, "name"):        input.Name,
		name(existing, "description"): input.Description,
		name(existing, "imageUrl"):    input.ImageURL,
		name(existing, "category"):    input.Category,
		name(existing, "priceType"):   string(input.PriceType),
		name(existing, "price"):       nil,
		name(existing, "updatedAt"):   repository.ServerTimestamp,
	}
	if input.Price != nil {
		fields[name(existing, "price")] = *input.Price
	}
	for k, v := range stockFields(existing, input.StockLevel) {
		fields[k] = v
	}
	return fields
}

// stockFields writes the level together with the legacy status string that
// older storefront code reads.
func stockFields(existing map[string]interface{}, level int) map[string]interface{} {
	status := entity.InStock
	if level <= 0 {
		status = entity.OutOfStock
	}
	return map[string]interface{}{
		normalize.ProductAliases.StoredField(existing, "stockLevel"):  level,
		normalize.ProductAliases.StoredField(existing, "stockStatus"): string(status),
	}
}

func (wc *WriteCoordinator) CreateProduct(ctx context.Context, actor entity.Actor, input ProductInput) (*entity.Product, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	if err := wc.checkProduct(&input); err != nil {
		return nil, err
	}

	fields := productFields(nil, input)
	fields[normalize.ProductAliases.Write("pitchCount")] = 0
	fields[normalize.ProductAliases.Write("createdAt")] = repository.ServerTimestamp

	now := wc.now()
	product := entity.Product{
		Name:        input.Name,
		Description: input.Description,
		ImageURL:    input.ImageURL,
		Category:    input.Category,
		PriceType:   input.PriceType,
		Price:       input.Price,
		StockLevel:  input.StockLevel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := wc.run(ctx, "create product", func(ctx context.Context) error {
		id, err := wc.store.Add(ctx, repository.CollectionProducts, fields)
		product.ID = id
		return err
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionProducts, "create", "", err)
		return nil, err
	}
	logger.Info("Product %s created by %s", product.ID, actor.UID)
	return &product, nil
}

// UpdateProduct overwrites the editable fields of a product. The pitch
// counter is left as stored.
func (wc *WriteCoordinator) UpdateProduct(ctx context.Context, actor entity.Actor, productID string, input ProductInput) (*entity.Product, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, errors.Validation("Product id is required", nil)
	}
	if err := wc.checkProduct(&input); err != nil {
		return nil, err
	}

	var product entity.Product
	err := wc.run(ctx, "update product", func(ctx context.Context) error {
		doc, err := wc.store.Get(ctx, repository.CollectionProducts, productID)
		if err != nil {
			return err
		}
		if err := wc.store.Update(ctx, repository.CollectionProducts, productID, productFields(doc.Data, input)); err != nil {
			return err
		}
		product, _ = normalize.Product(doc, wc.now())
		product.Name = input.Name
		product.Description = input.Description
		product.ImageURL = input.ImageURL
		product.Category = input.Category
		product.PriceType = input.PriceType
		product.Price = input.Price
		product.StockLevel = input.StockLevel
		product.UpdatedAt = wc.now()
		return nil
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionProducts, "update", productID, err)
		return nil, err
	}
	return &product, nil
}

// ToggleStock flips a product between out of stock and a stock level of one.
func (wc *WriteCoordinator) ToggleStock(ctx context.Context, actor entity.Actor, productID string) (*entity.Product, error) {
	return wc.writeStock(ctx, actor, productID, func(current int) int {
		if current > 0 {
			return 0
		}
		return 1
	})
}

func (wc *WriteCoordinator) SetStock(ctx context.Context, actor entity.Actor, productID string, level int) (*entity.Product, error) {
	if level < 0 {
		return nil, errors.Validation("Stock level cannot be negative", nil)
	}
	return wc.writeStock(ctx, actor, productID, func(int) int { return level })
}

func (wc *WriteCoordinator) writeStock(ctx context.Context, actor entity.Actor, productID string, next func(current int) int) (*entity.Product, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, errors.Validation("Product id is required", nil)
	}

	var product entity.Product
	err := wc.run(ctx, "update stock", func(ctx context.Context) error {
		doc, err := wc.store.Get(ctx, repository.CollectionProducts, productID)
		if err != nil {
			return err
		}
		product, _ = normalize.Product(doc, wc.now())
		level := next(product.StockLevel)

		fields := stockFields(doc.Data, level)
		fields[normalize.ProductAliases.StoredField(doc.Data, "updatedAt")] = repository.ServerTimestamp
		if err := wc.store.Update(ctx, repository.CollectionProducts, productID, fields); err != nil {
			return err
		}
		product.StockLevel = level
		product.UpdatedAt = wc.now()
		return nil
	})
	if err != nil {
		logger.LogWriteError(repository.CollectionProducts, "stock", productID, err)
		return nil, err
	}
	logger.Info("Product %s stock set to %d by %s", productID, product.StockLevel, actor.UID)
	return &product, nil
}

func (wc *WriteCoordinator) RequestProductDeletion(ctx context.Context, actor entity.Actor, productID string) (*Confirmation, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, errors.Validation("Product id is required", nil)
	}
	err := wc.run(ctx, "request product deletion", func(ctx context.Context) error {
		_, err := wc.store.Get(ctx, repository.CollectionProducts, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	conf := wc.confirmations.issue(actor.UID, repository.CollectionProducts, productID)
	return &conf, nil
}

// ConfirmDeletion issues the delete a previous request was confirmed for.
func (wc *WriteCoordinator) ConfirmDeletion(ctx context.Context, actor entity.Actor, token string) (*Confirmation, error) {
	if actor.UID == "" {
		return nil, errors.Unauthorized("Sign in required", nil)
	}
	if token == "" {
		return nil, errors.Validation("Confirmation token is required", nil)
	}
	conf, err := wc.confirmations.consume(actor.UID, token)
	if err != nil {
		return nil, err
	}

	// Privileges are checked again: the actor may have lost them since the
	// request was issued.
	err = wc.run(ctx, "delete", func(ctx context.Context) error {
		if err := wc.authorizeDeletion(ctx, actor, conf.Collection, conf.TargetID); err != nil {
			return err
		}
		return wc.store.Delete(ctx, conf.Collection, conf.TargetID)
	})
	if err != nil {
		logger.LogWriteError(conf.Collection, "delete", conf.TargetID, err)
		return nil, err
	}
	logger.Info("Deleted %s/%s on behalf of %s", conf.Collection, conf.TargetID, actor.UID)
	return &conf, nil
}

func (wc *WriteCoordinator) authorizeDeletion(ctx context.Context, actor entity.Actor, collection, targetID string) error {
	switch collection {
	case repository.CollectionMessages:
		err := wc.authorizeMessageDeletion(ctx, actor, targetID)
		if errors.Is(err, errors.CodeNotFound) {
			return nil
		}
		return err
	default:
		return requireOperator(actor)
	}
}
