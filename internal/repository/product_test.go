package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/tolmv/elasticsearch/internal/domain"
)

type ProductRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    ProductRepository
	context context.Context
}

func (suite *ProductRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewProductRepository(mock)
	suite.context = context.Background()
}

func (suite *ProductRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestProductRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ProductRepoTestSuite))
}

func sampleProduct() domain.Product {
	lvl1 := "Electronics"
	lvl2 := "Phones"
	return domain.Product{
		UUID:                 uuid.NewString(),
		MarketplaceID:        domain.MarketplaceID,
		ProductID:            101,
		Title:                "Galaxy S21",
		Description:          "Flagship phone",
		Brand:                "Samsung",
		SellerID:             7,
		SellerName:           "TechShop",
		FirstImageURL:        "https://img.example.com/s21.jpg",
		CategoryID:           2,
		CategoryLvl1:         &lvl1,
		CategoryLvl2:         &lvl2,
		PriceBeforeDiscounts: 100,
		PriceAfterDiscounts:  100,
		Currency:             "RUR",
		Barcode:              4601234567890,
	}
}

func insertArgs(p domain.Product) []any {
	return []any{
		p.UUID, p.MarketplaceID, p.ProductID, p.Title, p.Description, p.Brand,
		p.SellerID, p.SellerName, p.FirstImageURL, p.CategoryID,
		p.CategoryLvl1, p.CategoryLvl2, p.CategoryLvl3, p.CategoryRemaining,
		p.PriceBeforeDiscounts, p.Discount, p.PriceAfterDiscounts, p.Currency, p.Barcode,
	}
}

func (suite *ProductRepoTestSuite) TestInsertProducts_Success() {
	products := []domain.Product{sampleProduct(), sampleProduct()}

	suite.mock.ExpectBegin()
	batch := suite.mock.ExpectBatch()
	for _, p := range products {
		batch.ExpectExec(`INSERT INTO public.sku`).
			WithArgs(insertArgs(p)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	suite.mock.ExpectCommit()

	err := suite.repo.InsertProducts(suite.context, products)
	assert.NoError(suite.T(), err)
}

func (suite *ProductRepoTestSuite) TestInsertProducts_FailureRollsBackWholeBatch() {
	products := []domain.Product{sampleProduct(), sampleProduct(), sampleProduct()}

	suite.mock.ExpectBegin()
	batch := suite.mock.ExpectBatch()
	batch.ExpectExec(`INSERT INTO public.sku`).
		WithArgs(insertArgs(products[0])...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	batch.ExpectExec(`INSERT INTO public.sku`).
		WithArgs(insertArgs(products[1])...).
		WillReturnError(errors.New("null value in column \"title\""))
	suite.mock.ExpectRollback()

	err := suite.repo.InsertProducts(suite.context, products)
	assert.Error(suite.T(), err)
}

func (suite *ProductRepoTestSuite) TestInsertProducts_EmptyBatchIsNoop() {
	err := suite.repo.InsertProducts(suite.context, nil)
	assert.NoError(suite.T(), err)
}

func (suite *ProductRepoTestSuite) TestFetchProducts_Pagination() {
	rows := pgxmock.NewRows([]string{"uuid", "title", "description", "brand"})
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		rows.AddRow(id, "title-"+id, "desc-"+id, "brand-"+id)
	}
	suite.mock.ExpectQuery(`SELECT uuid, title, description, brand FROM public.sku`).
		WillReturnRows(rows)

	var pages [][]domain.ProductRef
	err := suite.repo.FetchProducts(suite.context, 2, func(page []domain.ProductRef) error {
		pages = append(pages, page)
		return nil
	})

	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), pages, 3)
	assert.Len(suite.T(), pages[0], 2)
	assert.Len(suite.T(), pages[1], 2)
	assert.Len(suite.T(), pages[2], 1)
	assert.Equal(suite.T(), "a", pages[0][0].UUID)
	assert.Equal(suite.T(), "title-e", pages[2][0].Title)
}

func (suite *ProductRepoTestSuite) TestFetchProducts_CallbackErrorStopsStream() {
	rows := pgxmock.NewRows([]string{"uuid", "title", "description", "brand"}).
		AddRow("a", "t", "d", "b").
		AddRow("b", "t", "d", "b")
	suite.mock.ExpectQuery(`SELECT uuid, title, description, brand FROM public.sku`).
		WillReturnRows(rows)

	wantErr := errors.New("stop")
	calls := 0
	err := suite.repo.FetchProducts(suite.context, 1, func([]domain.ProductRef) error {
		calls++
		return wantErr
	})

	assert.ErrorIs(suite.T(), err, wantErr)
	assert.Equal(suite.T(), 1, calls)
}

func (suite *ProductRepoTestSuite) TestUpdateSimilar_Success() {
	similar := []string{"x", "y", "z"}

	suite.mock.ExpectExec(`UPDATE public.sku SET similar_sku`).
		WithArgs(similar, "p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := suite.repo.UpdateSimilar(suite.context, "p1", similar)
	assert.NoError(suite.T(), err)
}

func (suite *ProductRepoTestSuite) TestUpdateSimilar_FailureIsIsolated() {
	suite.mock.ExpectExec(`UPDATE public.sku SET similar_sku`).
		WithArgs([]string{"x"}, "p1").
		WillReturnError(errors.New("connection reset"))
	suite.mock.ExpectExec(`UPDATE public.sku SET similar_sku`).
		WithArgs([]string{"y"}, "p2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.Error(suite.T(), suite.repo.UpdateSimilar(suite.context, "p1", []string{"x"}))
	assert.NoError(suite.T(), suite.repo.UpdateSimilar(suite.context, "p2", []string{"y"}))
}
