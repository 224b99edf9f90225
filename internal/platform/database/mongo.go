package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"authgate/internal/platform/config"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	Client *mongo.Client
	DB     *mongo.Database
)

func Connect() {
	var err error
	Client, err = mongo.Connect(options.Client().ApplyURI(config.AppConfig.MongoURI))
	if err != nil {
		log.Fatalf("Error creating MongoDB client: %v", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = Client.Ping(ctx, nil); err != nil {
		log.Fatalf("Error connecting to MongoDB: %v", err)
	}

	DB = Client.Database(config.AppConfig.MongoDBName)
	fmt.Println("Successfully connected to MongoDB!")
}

func Close() {
	if Client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := Client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
			return
		}
		fmt.Println("MongoDB connection closed.")
	}
}
