package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"go-storefront/models"
)

// CatalogRepository reads the reference data carts are priced against.
// The catalog itself is maintained elsewhere.
type CatalogRepository struct {
	regions    *mongo.Collection
	variants   *mongo.Collection
	shipping   *mongo.Collection
	promotions *mongo.Collection
}

func NewCatalogRepository(db *mongo.Database) *CatalogRepository {
	return &CatalogRepository{
		regions:    db.Collection(collRegions),
		variants:   db.Collection(collVariants),
		shipping:   db.Collection(collShippingOptions),
		promotions: db.Collection(collPromotions),
	}
}

func (r *CatalogRepository) GetRegion(ctx context.Context, id string) (*models.Region, error) {
	var region models.Region
	if err := r.regions.FindOne(ctx, bson.M{"_id": id}).Decode(&region); err != nil {
		return nil, mapFindError("get region", err)
	}
	return &region, nil
}

func (r *CatalogRepository) GetVariant(ctx context.Context, id string) (*models.Variant, error) {
	var variant models.Variant
	if err := r.variants.FindOne(ctx, bson.M{"_id": id}).Decode(&variant); err != nil {
		return nil, mapFindError("get variant", err)
	}
	return &variant, nil
}

func (r *CatalogRepository) GetShippingOption(ctx context.Context, id string) (*models.ShippingOption, error) {
	var option models.ShippingOption
	if err := r.shipping.FindOne(ctx, bson.M{"_id": id}).Decode(&option); err != nil {
		return nil, mapFindError("get shipping option", err)
	}
	return &option, nil
}

func (r *CatalogRepository) GetPromotion(ctx context.Context, code string) (*models.Promotion, error) {
	var promotion models.Promotion
	if err := r.promotions.FindOne(ctx, bson.M{"_id": code}).Decode(&promotion); err != nil {
		return nil, mapFindError("get promotion", err)
	}
	return &promotion, nil
}
