package search

// productMapping is the fixed schema of the product index. Field names match
// the json tags on domain.Product.
const productMapping = `{
	"mappings": {
		"properties": {
			"uuid": {"type": "keyword"},
			"marketplace_id": {"type": "integer"},
			"product_id": {"type": "long"},
			"title": {"type": "text"},
			"description": {"type": "text"},
			"brand": {"type": "keyword"},
			"seller_id": {"type": "integer"},
			"seller_name": {"type": "keyword"},
			"first_image_url": {"type": "text"},
			"category_id": {"type": "integer"},
			"category_lvl_1": {"type": "keyword"},
			"category_lvl_2": {"type": "keyword"},
			"category_lvl_3": {"type": "keyword"},
			"category_remaining": {"type": "text"},
			"price_before_discounts": {"type": "float"},
			"discount": {"type": "float"},
			"price_after_discounts": {"type": "float"},
			"currency": {"type": "keyword"},
			"barcode": {"type": "long"}
		}
	}
}`
