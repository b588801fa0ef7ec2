package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/internal/cache"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createOrderTable(db)
	if err != nil {
		return nil, err
	}
	err = createOrderTransitionTable(db)
	if err != nil {
		return nil, err
	}
	err = createHaltFlagTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createOrderTable creates a PostgreSQL table for the Order struct
func createOrderTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			order_id TEXT NOT NULL UNIQUE,
			buyer_pubkey TEXT NOT NULL,
			buyer_alias TEXT,
			capacity_sats BIGINT NOT NULL,
			price_sats BIGINT NOT NULL,
			estimated_fee_sats BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			reason TEXT,
			invoice_r_hash TEXT,
			payment_request TEXT,
			funding_txid TEXT,
			channel_point TEXT,
			invoice_expires_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			last_transition_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	log.Println(err)
	return err
}

// createOrderTransitionTable creates a PostgreSQL table for the StatusTransition struct
func createOrderTransitionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS order_transitions (
			id SERIAL PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(order_id),
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createHaltFlagTable creates a PostgreSQL table for the HaltFlag struct.
// The CHECK on id keeps the table a singleton.
func createHaltFlagTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS halt_flag (
			id INT PRIMARY KEY CHECK (id = 1),
			reason TEXT NOT NULL,
			set_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}
