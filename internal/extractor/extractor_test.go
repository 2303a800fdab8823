package extractor

import (
	"context"
	"os"
	"path/filepath"
	"smarthomes-semantic/internal/model"
	"smarthomes-semantic/internal/repository"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.ProductReview{}))

	require.NoError(t, db.Create([]model.Product{
		{ProductID: 1, ProductModelName: "Ring Video Doorbell", ProductPrice: 99.99, ProductCategory: "Doorbells", ProductDescription: "1080p doorbell with motion alerts"},
		{ProductID: 2, ProductModelName: "Nest Thermostat", ProductPrice: 150, ProductCategory: "Thermostats", ProductDescription: "Learning thermostat"},
		{ProductID: 3, ProductModelName: "", ProductPrice: 10, ProductCategory: "Lighting"},
	}).Error)
	require.NoError(t, db.Create([]model.ProductReview{
		{ReviewID: 10, ProductModelName: "Ring Video Doorbell", ProductCategory: "Doorbells", ProductPrice: 99.99, ReviewRating: 5, ReviewText: "Very quiet chime"},
		{ReviewID: 11, ProductModelName: "Unknown Gadget", ProductCategory: "Misc", ProductPrice: 5, ReviewRating: 1, ReviewText: "Broke on day one"},
		{ReviewID: 12, ProductModelName: "Nest Thermostat", ProductCategory: "Thermostats", ProductPrice: 150, ReviewRating: 3, ReviewText: ""},
	}).Error)
	return db
}

func newExtractor(db *gorm.DB, opts Options) *Extractor {
	return New(repository.NewProductRepository(db), repository.NewReviewRepository(db), opts)
}

func TestFetchAll_Products(t *testing.T) {
	e := newExtractor(setupTestDB(t), Options{})

	records, rejected, err := e.FetchAll(context.Background(), model.KindProduct)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.EqualValues(t, 1, records[0].EntityID)
	assert.Equal(t, model.KindProduct, records[0].Kind)

	require.Len(t, rejected, 1, "product without a name is rejected at the boundary")
	assert.EqualValues(t, 3, rejected[0].EntityID)
}

func TestFetchAll_ReviewsFromMySQL(t *testing.T) {
	e := newExtractor(setupTestDB(t), Options{ReviewSource: ReviewSourceMySQL})

	records, rejected, err := e.FetchAll(context.Background(), model.KindReview)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.EqualValues(t, 10, records[0].EntityID)
	assert.EqualValues(t, 11, records[1].EntityID)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Reason, "empty review text")
}

func TestFetchAll_ReviewsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "product_reviews.json")
	raw := `[
		{"productModelName":"Ring Video Doorbell","productCategory":"Doorbells","productPrice":"99.99","reviewRating":4,"reviewDate":"2024-08-01","reviewText":"Clear picture"},
		{"productModelName":"Nest Thermostat","productCategory":"Thermostats","productPrice":150,"reviewRating":2,"reviewDate":"2024-08-02","reviewText":"Hard to install"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	e := New(repository.NewProductRepository(setupTestDB(t)), nil, Options{ReviewSource: ReviewSourceFile, ReviewsFile: path})
	records, rejected, err := e.FetchAll(context.Background(), model.KindReview)
	require.NoError(t, err)
	assert.Empty(t, rejected)
	require.Len(t, records, 2)
	assert.EqualValues(t, 1, records[0].EntityID, "file reviews use their 1-based position")
	assert.EqualValues(t, 2, records[1].EntityID)
	assert.Equal(t, "2024-08-02", records[1].ReviewDate)
}

func TestFetchAll_UnknownKind(t *testing.T) {
	e := newExtractor(setupTestDB(t), Options{})
	_, _, err := e.FetchAll(context.Background(), model.Kind("order"))
	assert.ErrorIs(t, err, model.ErrUnknownKind)
}

func TestProductMap_Resolve(t *testing.T) {
	e := newExtractor(setupTestDB(t), Options{})
	m, err := e.ProductMap(context.Background())
	require.NoError(t, err)

	id, err := m.Resolve(model.SourceRecord{EntityID: 10, Kind: model.KindReview, ProductModelName: "Nest Thermostat"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, id)

	_, err = m.Resolve(model.SourceRecord{EntityID: 11, Kind: model.KindReview, ProductModelName: "Unknown Gadget"})
	assert.ErrorIs(t, err, ErrMissingProductMapping)
	assert.Equal(t, "missing product mapping", err.Error())

	id, err = m.Resolve(model.SourceRecord{EntityID: 7, Kind: model.KindProduct, ProductModelName: "Anything"})
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
}

func TestCompose(t *testing.T) {
	product := model.SourceRecord{
		EntityID: 1, Kind: model.KindProduct,
		ProductModelName: "Ring Video Doorbell", Price: 99.99, Category: "Doorbells", Description: "1080p doorbell",
	}
	assert.Equal(t, "Ring Video Doorbell 99.99 Doorbells 1080p doorbell", Compose(product))
	assert.Equal(t, Compose(product), Compose(product))

	review := model.SourceRecord{
		EntityID: 4, Kind: model.KindReview,
		ProductModelName: "Nest Thermostat", Price: 150, Category: "Thermostats", Rating: 5, ReviewText: "Saves energy",
	}
	assert.Equal(t, "Nest Thermostat Thermostats 150.00 5 Saves energy", Compose(review))
}
