package validators

import "go.mongodb.org/mongo-driver/bson"

var slotPattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$`

var datePattern = `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`

var AvailabilityValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"agency_id", "date", "available", "booked", "version"},
		"additionalProperties": true,

		"properties": bson.M{
			"agency_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"date": bson.M{
				"bsonType": "string",
				"pattern":  datePattern,
			},
			"available": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
					"pattern":  slotPattern,
				},
			},
			"booked": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"time", "origin"},
					"properties": bson.M{
						"time": bson.M{
							"bsonType": "string",
							"pattern":  slotPattern,
						},
						"origin": bson.M{
							"bsonType": "string",
							"enum":     []string{"provisional", "confirmed", "blocked", "elapsed"},
						},
					},
				},
			},
			"version": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},
		},
	},
}

var BlockedSlotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"agency_id", "date", "time", "blocked_by_id", "blocked_at"},
		"additionalProperties": true,

		"properties": bson.M{
			"agency_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"date": bson.M{
				"bsonType": "string",
				"pattern":  datePattern,
			},
			"time": bson.M{
				"bsonType": "string",
				"pattern":  slotPattern,
			},
			"reason": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},
			"blocked_by_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"blocked_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var AgencyValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"name", "hours"},
		"additionalProperties": true,

		"properties": bson.M{
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},
			"time_zone": bson.M{
				"bsonType": "string",
			},
			"hours": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"weekday"},
					"properties": bson.M{
						"weekday": bson.M{
							"bsonType": "string",
							"enum": []string{
								"Sunday", "Monday", "Tuesday", "Wednesday",
								"Thursday", "Friday", "Saturday",
							},
						},
						"open":   bson.M{"bsonType": "string", "pattern": slotPattern},
						"close":  bson.M{"bsonType": "string", "pattern": slotPattern},
						"closed": bson.M{"bsonType": "bool"},
					},
				},
			},
		},
	},
}
