package models

import "time"

// ObjectStoreEntry is a deduplicated supporting payload, identified by the
// sha1 of its bytes. Multiple object_index rows may point at one entry.
type ObjectStoreEntry struct {
	StoreID  int64  `gorm:"column:store_id;primaryKey;autoIncrement" json:"store_id"`
	SHA1     string `gorm:"column:sha1;size:40;uniqueIndex;not null" json:"sha1"`
	Location string `gorm:"column:location;size:255;not null" json:"-"`
}

// TableName returns the table name for ObjectStoreEntry.
func (ObjectStoreEntry) TableName() string {
	return "object_store"
}

// ObjectIndexEntry maps a (request_url, etag, sha1) observed in the context
// of a work to the object_id used in rewritten HTML.
//
// ObjectID is allocated from the sequence shared with unfetched_objects, so
// /objects/<id> URLs stay stable when an unfetched row becomes indexed.
type ObjectIndexEntry struct {
	ObjectID   int64  `gorm:"column:object_id;primaryKey" json:"object_id"`
	RequestURL string `gorm:"column:request_url;size:2000;index:object_index_request_url_index;not null" json:"request_url"`
	SHA1       string `gorm:"column:sha1;size:40;not null" json:"sha1"`
	ETag       string `gorm:"column:etag;size:255" json:"etag,omitempty"`
	Mimetype   string `gorm:"column:mimetype;size:255" json:"mimetype,omitempty"`
}

// TableName returns the table name for ObjectIndexEntry.
func (ObjectIndexEntry) TableName() string {
	return "object_index"
}

// UnfetchedObject is a reference discovered inside a stored HTML work whose
// payload has not yet been fetched. The row is deleted, atomically with the
// insert of an object_index or duplicate-mapping row, when a worker submits
// the payload.
type UnfetchedObject struct {
	ObjectID   int64     `gorm:"column:object_id;primaryKey" json:"object_id"`
	RequestURL string    `gorm:"column:request_url;size:2000;not null" json:"request_url"`
	Stalled    bool      `gorm:"column:stalled;default:false;not null" json:"stalled"`
	Timestamp  time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
}

// TableName returns the table name for UnfetchedObject.
func (UnfetchedObject) TableName() string {
	return "unfetched_objects"
}

// DuplicateObjectMapping records that a submitted payload for ObjectID turned
// out to be identical to an already-indexed object. HTML rewritten with the
// old id keeps resolving through this row.
type DuplicateObjectMapping struct {
	ObjectID          int64 `gorm:"column:object_id;primaryKey" json:"object_id"`
	DuplicateObjectID int64 `gorm:"column:duplicate_object_id;not null" json:"duplicate_object_id"`
}

// TableName returns the table name for DuplicateObjectMapping.
func (DuplicateObjectMapping) TableName() string {
	return "duplicate_object_index_mapping"
}

// ObjectDispatch is a lease of an unfetched-object fetch to a worker.
// Object fetches currently ride on submit_job responses, but the table is
// part of the v2 on-disk layout and the sweeper reads it.
type ObjectDispatch struct {
	DispatchID       int64     `gorm:"column:dispatch_id;primaryKey;autoIncrement" json:"dispatch_id"`
	DispatchedTime   time.Time `gorm:"column:dispatched_time;not null" json:"dispatched_time"`
	DispatchedToName string    `gorm:"column:dispatched_to_name;size:255;not null" json:"dispatched_to_name"`
	ObjectID         int64     `gorm:"column:object_id;index:object_dispatches_object_id_index;not null" json:"object_id"`
	FailReported     bool      `gorm:"column:fail_reported;default:false;not null" json:"fail_reported"`
	Complete         bool      `gorm:"column:complete;default:false;not null" json:"complete"`
}

// TableName returns the table name for ObjectDispatch.
func (ObjectDispatch) TableName() string {
	return "object_dispatches"
}

// ObjectIDAlloc backs the object-id sequence shared by object_index and
// unfetched_objects. Ids are allocated by inserting a row inside the caller's
// transaction; the auto-increment value is the allocated id.
type ObjectIDAlloc struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
}

// TableName returns the table name for ObjectIDAlloc.
func (ObjectIDAlloc) TableName() string {
	return "object_ids"
}
