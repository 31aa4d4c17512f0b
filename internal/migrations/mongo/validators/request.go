package validators

import "go.mongodb.org/mongo-driver/bson"

var RequestValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"requester_id",
			"agency_id",
			"status",
			"open",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"requester_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},
			"agency_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},
			"description": bson.M{
				"bsonType":  "string",
				"maxLength": 2000,
			},
			"preferred_at": bson.M{
				"bsonType": "date",
			},
			"start_at": bson.M{
				"bsonType": "date",
			},
			"end_at": bson.M{
				"bsonType": "date",
			},
			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"PENDING",
					"CONFIRMED",
					"CANCELED",
					"COMPLETED",
				},
			},
			"open": bson.M{
				"bsonType": "bool",
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
