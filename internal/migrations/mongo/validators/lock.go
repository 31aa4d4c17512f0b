package validators

import "go.mongodb.org/mongo-driver/bson"

var LockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"request_id",
			"holder_id",
			"acquired_at",
			"expires_at",
			"active",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},
			"request_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"holder_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},
			"holder_name": bson.M{
				"bsonType":  "string",
				"maxLength": 100,
			},
			"acquired_at": bson.M{
				"bsonType": "date",
			},
			"expires_at": bson.M{
				"bsonType": "date",
			},
			"active": bson.M{
				"bsonType": "bool",
			},
			"released_at": bson.M{
				"bsonType": "date",
			},
			"release_reason": bson.M{
				"bsonType": "string",
				"enum":     []string{"released", "forced", "expired"},
			},
		},
	},
}
