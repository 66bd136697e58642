package feed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/tolmv/elasticsearch/internal/domain"
)

// Reader streams category and offer records out of the feed document. Each
// pass tokenizes the document forward-only and decodes one element at a time,
// so memory stays bounded regardless of feed size. A malformed record is
// logged and skipped; only a broken document or a cancelled context aborts a
// pass.
type Reader struct {
	source *Source
}

func NewReader(source *Source) *Reader {
	return &Reader{source: source}
}

// ReadCategories performs the first pass, handing every well-formed category
// record to fn in document order.
func (r *Reader) ReadCategories(ctx context.Context, fn func(domain.Category)) error {
	rc, err := r.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open feed: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start, err := nextElement(decoder, "category")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read feed: %w", err)
		}

		var elem categoryElement
		if err := decoder.DecodeElement(&elem, start); err != nil {
			return fmt.Errorf("failed to decode category element: %w", err)
		}

		category, err := elem.toCategory()
		if err != nil {
			log.Errorf("Error parsing category: %v", err)
			continue
		}
		fn(category)
	}
}

// ReadProducts performs the second pass, building a Product for every
// well-formed offer with its category path resolved through tree.
func (r *Reader) ReadProducts(ctx context.Context, tree *domain.CategoryTree, fn func(domain.Product)) error {
	rc, err := r.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open feed: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start, err := nextElement(decoder, "offer")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read feed: %w", err)
		}

		var elem offerElement
		if err := decoder.DecodeElement(&elem, start); err != nil {
			return fmt.Errorf("failed to decode offer element: %w", err)
		}

		product, err := elem.toProduct(tree)
		if err != nil {
			log.Errorf("Error parsing product: %v", err)
			continue
		}
		fn(product)
	}
}

// nextElement advances the token stream to the next start element with the
// given local name. Returns io.EOF at end of document.
func nextElement(decoder *xml.Decoder, name string) (*xml.StartElement, error) {
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := token.(xml.StartElement); ok && start.Name.Local == name {
			return &start, nil
		}
	}
}

type categoryElement struct {
	ID       string `xml:"id,attr"`
	ParentID string `xml:"parentId,attr"`
	Name     string `xml:",chardata"`
}

func (e categoryElement) toCategory() (domain.Category, error) {
	id, err := strconv.Atoi(strings.TrimSpace(e.ID))
	if err != nil {
		return domain.Category{}, fmt.Errorf("invalid category id %q: %w", e.ID, err)
	}

	parentID, err := parseOptionalInt(e.ParentID)
	if err != nil {
		return domain.Category{}, fmt.Errorf("invalid parentId %q for category %d: %w", e.ParentID, id, err)
	}

	return domain.Category{
		ID:       id,
		ParentID: parentID,
		Name:     strings.TrimSpace(e.Name),
	}, nil
}

type offerElement struct {
	ID          string `xml:"id,attr"`
	CategoryID  string `xml:"categoryId"`
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Vendor      string `xml:"vendor"`
	ShopID      string `xml:"shop-id"`
	ShopName    string `xml:"shop-name"`
	Picture     string `xml:"picture"`
	Price       string `xml:"price"`
	Discount    string `xml:"discount"`
	OldPrice    string `xml:"oldprice"`
	CurrencyID  string `xml:"currencyId"`
	Barcode     string `xml:"barcode"`
}

func (e offerElement) toProduct(tree *domain.CategoryTree) (domain.Product, error) {
	productID, err := strconv.ParseInt(strings.TrimSpace(e.ID), 10, 64)
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid offer id %q: %w", e.ID, err)
	}

	categoryID, err := parseOptionalInt(e.CategoryID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid categoryId for offer %d: %w", productID, err)
	}
	sellerID, err := parseOptionalInt(e.ShopID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid shop-id for offer %d: %w", productID, err)
	}
	price, err := parseOptionalFloat(e.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid price for offer %d: %w", productID, err)
	}
	discount, err := parseOptionalFloat(e.Discount)
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid discount for offer %d: %w", productID, err)
	}
	oldPrice, err := parseOptionalFloat(e.OldPrice)
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid oldprice for offer %d: %w", productID, err)
	}
	barcode, err := parseOptionalInt64(e.Barcode)
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid barcode for offer %d: %w", productID, err)
	}

	priceAfter := oldPrice
	if priceAfter == 0 {
		priceAfter = price
	}

	product := domain.Product{
		UUID:                 uuid.NewString(),
		MarketplaceID:        domain.MarketplaceID,
		ProductID:            productID,
		Title:                e.Name,
		Description:          e.Description,
		Brand:                e.Vendor,
		SellerID:             sellerID,
		SellerName:           e.ShopName,
		FirstImageURL:        e.Picture,
		CategoryID:           categoryID,
		PriceBeforeDiscounts: price,
		Discount:             discount,
		PriceAfterDiscounts:  priceAfter,
		Currency:             e.CurrencyID,
		Barcode:              barcode,
	}
	product.SetCategoryPath(tree.Path(categoryID))

	return product, nil
}

// Absent and empty numeric elements default to zero; a non-empty value must
// parse.

func parseOptionalInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseOptionalInt64(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseOptionalFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
