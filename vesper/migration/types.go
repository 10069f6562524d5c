package migration

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoEconomy is one member's economy record in the legacy deployment.
type MongoEconomy struct {
	ID        primitive.ObjectID `bson:"_id"`
	Guild     string             `bson:"guild"`
	User      string             `bson:"user"`
	Balance   int64              `bson:"balance"`
	LastDaily time.Time          `bson:"lastdaily"`
	Items     map[string]int64   `bson:"items"`
}

// MongoWordlist holds one guild's auto-moderation lists. The three lists
// are mixed arrays: old records stored bare phrase strings, newer ones
// stored structured documents.
type MongoWordlist struct {
	ID       primitive.ObjectID `bson:"_id"`
	Guild    string             `bson:"guild"`
	BanList  []bson.RawValue    `bson:"word_banlist"`
	KickList []bson.RawValue    `bson:"word_kicklist"`
	MuteList []bson.RawValue    `bson:"word_mutelist"`
}

// MongoWordlistEntry is the structured shape of a wordlist entry.
type MongoWordlistEntry struct {
	Phrase   string `bson:"phrase"`
	Reason   string `bson:"reason"`
	Duration int64  `bson:"duration"`
	Guild    string `bson:"guild"`
}

// MongoFollowing is one feed subscription in the legacy deployment.
type MongoFollowing struct {
	ID         primitive.ObjectID `bson:"_id"`
	Guild      string             `bson:"guild"`
	Platform   string             `bson:"platform"`
	Identifier string             `bson:"identifier"`
	Channel    string             `bson:"channel"`
	Message    string             `bson:"message"`
	Ping       string             `bson:"ping"`
	PingRole   string             `bson:"pingrole"`
	Thumbnail  string             `bson:"thumbnail"`
	LastSeen   string             `bson:"lastseen"`
}

// MongoCounting is one counting channel's state in the legacy deployment.
type MongoCounting struct {
	ID       primitive.ObjectID `bson:"_id"`
	Guild    string             `bson:"guild"`
	Channel  string             `bson:"channel"`
	Count    int64              `bson:"count"`
	LastUser string             `bson:"lastuser"`
	Chances  *int64             `bson:"chances"`
	Mistakes map[string]int64   `bson:"mistakes"`
}

// MigrationStats tracks progress across the whole import.
type MigrationStats struct {
	Tables         map[string]*TableStats `json:"tables"`
	StartTime      time.Time              `json:"start_time"`
	EndTime        time.Time              `json:"end_time"`
	TotalProcessed int                    `json:"total_processed"`
	TotalSkipped   int                    `json:"total_skipped"`
	TotalErrors    int                    `json:"total_errors"`
}

// TableStats tracks stats for one target table.
type TableStats struct {
	TableName  string   `json:"table_name"`
	Processed  int      `json:"processed"`
	Successful int      `json:"successful"`
	Skipped    int      `json:"skipped"`
	Errors     int      `json:"errors"`
	Notes      []string `json:"notes,omitempty"`
}
