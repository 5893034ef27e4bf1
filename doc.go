// Package spannerorm maps Go structs to Cloud Spanner tables.
//
// A model is a struct that embeds Base, implements TableName and tags its
// exported fields with `spanner` struct tags:
//
//	type Singer struct {
//		spannerorm.Base
//		SingerID string    `spanner:"SingerId,primary_key"`
//		Name     string    `spanner:"Name"`
//		Birthday *time.Time `spanner:"Birthday,nullable"`
//	}
//
//	func (Singer) TableName() string { return "Singers" }
//
// Models are registered once and then read and written through a Client,
// either directly or inside read-only and read-write transactions:
//
//	spannerorm.MustRegister(&Singer{})
//	client, err := spannerorm.Connect(ctx, cfg)
//	...
//	var singers []Singer
//	err = client.Where(ctx, &singers,
//		spannerorm.EqualTo("Name", "Tina"),
//		spannerorm.Limit(10))
//
// Rows loaded through the client track which columns changed since load, so
// Save writes only the changed columns and primary keys stay immutable.
package spannerorm
