// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"towebp-server/catalog"
	"towebp-server/commons"
	"towebp-server/conversions"
	"towebp-server/db"
	"towebp-server/events"
	"towebp-server/storage"
)

var (
	planCatalog *catalog.Catalog
	fileStore   *storage.FileStore
	registrar   *conversions.Registrar
	publisher   *events.Publisher
)

// Init wires the shared service singletons. Must run after db.InitDB.
func Init() error {
	var err error

	fileStore, err = storage.NewFileStore("")
	if err != nil {
		return err
	}

	publisher, err = events.NewPublisher()
	if err != nil {
		// The broker is an optional collaborator; run without it.
		commons.Logger.Warnf("Event publisher unavailable: %v", err)
		publisher = nil
	}

	planCatalog = catalog.New(db.Conn)
	registrar = conversions.NewRegistrar(db.Conn, fileStore, planCatalog, publisher)
	return nil
}
