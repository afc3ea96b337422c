package database

import (
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

var DB *gorm.DB

var mongoDB *mongo.Database

// GetDB returns the global gorm handle (nil until SetupDatabase ran).
func GetDB() *gorm.DB {
	return DB
}

// GetMongoDatabase returns the global document-store handle (nil until
// SetupMongoDatabase ran).
func GetMongoDatabase() *mongo.Database {
	return mongoDB
}
