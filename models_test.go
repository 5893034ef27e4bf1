package spannerorm_test

import (
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/spanner"

	spannerorm "github.com/fjell-io/spanner-orm"
)

// Event exercises every supported column type
type Event struct {
	spannerorm.Base
	ID       string             `spanner:"id,primary_key"`
	Seq      int64              `spanner:"seq,primary_key"`
	Flag     bool               `spanner:"flag"`
	Score    float64            `spanner:"score"`
	Payload  []byte             `spanner:"payload,nullable"`
	Happened time.Time          `spanner:"happened"`
	Day      civil.Date         `spanner:"day"`
	Labels   []string           `spanner:"labels,nullable"`
	Counts   []int64            `spanner:"counts,nullable"`
	Note     *string            `spanner:"note"`
	Ended    spanner.NullTime   `spanner:"ended"`
	Extra    spanner.NullString `spanner:"extra"`
	Scratch  string             `spanner:"-"`

	internal int
}

func (Event) TableName() string { return "Events" }

type Venue struct {
	spannerorm.Base
	ID   string `spanner:"id,primary_key"`
	Name string `spanner:"name"`
}

func (Venue) TableName() string { return "Venues" }

// Concert is interleaved in Venues and carries a secondary index
type Concert struct {
	spannerorm.Base
	VenueID string    `spanner:"venue_id,primary_key"`
	ID      string    `spanner:"id,primary_key"`
	Name    string    `spanner:"name"`
	Starts  time.Time `spanner:"starts"`
}

func (Concert) TableName() string { return "Concerts" }

func (Concert) ParentTable() string { return "Venues" }

func (Concert) Indexes() []spannerorm.Index {
	return []spannerorm.Index{
		{Name: "ConcertsByName", Columns: []string{"name"}, Storing: []string{"starts"}},
	}
}

// relHost declares its relationships through a package variable so the error
// matrix can swap them out per test case
type relHost struct {
	spannerorm.Base
	ID   string      `spanner:"id,primary_key"`
	Name string      `spanner:"name"`
	Many []relTarget `spanner:"-"`
	One  *relTarget  `spanner:"-"`
}

func (relHost) TableName() string { return "RelHosts" }

func (relHost) Relationships() []spannerorm.Relationship { return testRelationships }

var testRelationships []spannerorm.Relationship

type relTarget struct {
	spannerorm.Base
	ID     string `spanner:"id,primary_key"`
	HostID string `spanner:"host_id"`
}

func (relTarget) TableName() string { return "RelTargets" }

// indexedModel mirrors the relHost trick for index declarations
type indexedModel struct {
	spannerorm.Base
	ID   string `spanner:"id,primary_key"`
	Name string `spanner:"name"`
}

func (indexedModel) TableName() string { return "Indexed" }

func (indexedModel) Indexes() []spannerorm.Index { return testIndexes }

var testIndexes []spannerorm.Index

// Invalid model declarations for the registration error matrix

type noBase struct {
	ID string `spanner:"id,primary_key"`
}

func (noBase) TableName() string { return "NoBase" }

type noColumns struct {
	spannerorm.Base
}

func (noColumns) TableName() string { return "NoColumns" }

type noKey struct {
	spannerorm.Base
	Name string `spanner:"name"`
}

func (noKey) TableName() string { return "NoKeys" }

type dupColumn struct {
	spannerorm.Base
	A string `spanner:"name,primary_key"`
	B string `spanner:"name"`
}

func (dupColumn) TableName() string { return "DupColumns" }

type taggedUnexported struct {
	spannerorm.Base
	ID     string `spanner:"id,primary_key"`
	hidden string `spanner:"hidden"`
}

func (taggedUnexported) TableName() string { return "TaggedUnexported" }

type badNullable struct {
	spannerorm.Base
	ID   string `spanner:"id,primary_key"`
	Name string `spanner:"name,nullable"`
}

func (badNullable) TableName() string { return "BadNullables" }

type badCommitTS struct {
	spannerorm.Base
	ID string `spanner:"id,primary_key"`
	N  int64  `spanner:"n,commit_ts"`
}

func (badCommitTS) TableName() string { return "BadCommitTS" }

type unknownOption struct {
	spannerorm.Base
	ID string `spanner:"id,primary_key,wat"`
}

func (unknownOption) TableName() string { return "UnknownOptions" }

type unsupportedType struct {
	spannerorm.Base
	ID string  `spanner:"id,primary_key"`
	F  float32 `spanner:"f"`
}

func (unsupportedType) TableName() string { return "UnsupportedTypes" }

type emptyTable struct {
	spannerorm.Base
	ID string `spanner:"id,primary_key"`
}

func (emptyTable) TableName() string { return "" }
