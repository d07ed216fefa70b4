package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	catIDs := seedCategories(db)
	seedCatalog(db, catIDs)
	seedVouchers(db, catIDs)

	log.Println("Seeding completed successfully!")
}

func seedCategories(db *sql.DB) map[string]string {
	categories := []struct {
		Name string
		Slug string
	}{
		{"Electronics", "electronics"},
		{"Fashion", "fashion"},
		{"Home & Living", "home-living"},
		{"Books", "books"},
	}

	fmt.Println("Seeding Categories...")
	ids := make(map[string]string)
	for _, c := range categories {
		var id string
		err := db.QueryRow(`
			INSERT INTO categories (name, slug)
			VALUES ($1, $2)
			ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
			RETURNING id;
		`, c.Name, c.Slug).Scan(&id)
		if err != nil {
			log.Printf("Failed to upsert category %s: %v", c.Name, err)
			continue
		}
		ids[c.Slug] = id
	}
	return ids
}

func seedCatalog(db *sql.DB, catIDs map[string]string) {
	products := []struct {
		Name     string
		Slug     string
		Category string
		Price    int64
		Stock    int
		Variants []string
	}{
		{"Tai nghe Sony WH-1000XM5", "sony-wh-1000xm5", "electronics", 200000, 150, nil},
		{"Ban phim co Keychron K2", "keychron-k2", "electronics", 1850000, 40, nil},
		{"Ao thun basic", "ao-thun-basic", "fashion", 100000, 0, []string{"S", "M", "L", "XL"}},
		{"Giay the thao", "giay-the-thao", "fashion", 650000, 0, []string{"40", "41", "42"}},
		{"Den ban LED", "den-ban-led", "home-living", 320000, 60, nil},
		{"Clean Code", "clean-code", "books", 280000, 25, nil},
	}

	fmt.Println("Seeding Products...")
	for _, p := range products {
		catID, ok := catIDs[p.Category]
		if !ok {
			log.Printf("Missing category ID for %s", p.Category)
			continue
		}

		var prodID string
		err := db.QueryRow(`
			INSERT INTO products (name, slug, category_id, price, stock, has_variants, active)
			VALUES ($1, $2, $3, $4, $5, $6, true)
			ON CONFLICT (slug) DO UPDATE SET
				price = EXCLUDED.price,
				stock = EXCLUDED.stock,
				category_id = EXCLUDED.category_id,
				has_variants = EXCLUDED.has_variants,
				updated_at = now()
			RETURNING id;
		`, p.Name, p.Slug, catID, p.Price, p.Stock, len(p.Variants) > 0).Scan(&prodID)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.Name, err)
			continue
		}

		for _, size := range p.Variants {
			sku := strings.ToUpper(strings.ReplaceAll(p.Slug, "-", "")) + "-" + size
			_, err = db.Exec(`
				INSERT INTO product_variants (product_id, name, sku, price, stock)
				VALUES ($1, $2, $3, $4, 30)
				ON CONFLICT (sku) DO UPDATE SET
					price = EXCLUDED.price,
					stock = EXCLUDED.stock;
			`, prodID, "Size "+size, sku, p.Price)
			if err != nil {
				log.Printf("Failed to seed variant %s: %v", sku, err)
			}
		}
	}
}

func seedVouchers(db *sql.DB, catIDs map[string]string) {
	vouchers := []struct {
		Code     string
		Kind     string
		Value    string
		MinOrder int64
		Category string
	}{
		{"SAVE10", "PERCENTAGE", "10", 100000, ""},
		{"FIXED50K", "FIXED_AMOUNT", "50000", 500000, ""},
		{"FASHION15", "PERCENTAGE", "15", 0, "fashion"},
	}

	fmt.Println("Seeding Vouchers...")
	for _, v := range vouchers {
		var category any
		if v.Category != "" {
			category = catIDs[v.Category]
		}
		_, err := db.Exec(`
			INSERT INTO vouchers (code, kind, value, min_order_amount, category_id, valid_from, valid_until, active)
			VALUES ($1, $2, $3::numeric, $4, $5, NOW(), NOW() + INTERVAL '1 year', true)
			ON CONFLICT (upper(code)) DO NOTHING;
		`, v.Code, v.Kind, v.Value, v.MinOrder, category)
		if err != nil {
			log.Printf("Failed to seed voucher %s: %v", v.Code, err)
		}
	}
}
