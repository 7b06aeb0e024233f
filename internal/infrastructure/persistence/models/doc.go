// Package models contains GORM persistence models for reference data the
// engine reads but does not own: catalog items and customers. Mappers
// convert them into the narrow views the sale engine works with.
package models
