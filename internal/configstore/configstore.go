// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package configstore persists run defaults (telescope, region, directories,
// worker counts) across invocations in a small SQLite table, so operators
// don't have to repeat every CLI flag on every run. Absence of a stored
// value is always treated as "use the built-in default".
package configstore

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setting is the single (key, value) row shape backing the store.
type setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// Store is a persisted key/value override table.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the SQLite file at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("configstore: opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&setting{}); err != nil {
		return nil, fmt.Errorf("configstore: migrating %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Get returns the stored value for key, or ok=false if no override exists.
func (s *Store) Get(key string) (value string, ok bool, err error) {
	var row setting
	result := s.db.First(&row, "key = ?", key)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("configstore: get %s: %w", key, result.Error)
	}
	return row.Value, true, nil
}

// Set persists value for key, overwriting any prior override.
func (s *Store) Set(key, value string) error {
	row := setting{Key: key, Value: value}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("configstore: set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
