package models

import "time"

// StorageEntry is a single immutable snapshot of one work in one format.
//
// For each (work_id, file_format) at most one entry has PatchOf == nil; that
// entry is HEAD and its blob holds the full content. Every other entry's blob
// holds a binary delta that, applied on top of the entry PatchOf points to,
// reproduces this entry's content. The Location key never changes across a
// HEAD promotion: the blob's contents are overwritten in place with the delta.
type StorageEntry struct {
	StorageID     int64      `gorm:"column:storage_id;primaryKey;autoIncrement" json:"storage_id"`
	WorkID        int64      `gorm:"column:work_id;index:idx_works_storage_work_format;not null" json:"work_id"`
	FileFormat    FileFormat `gorm:"column:file_format;size:8;index:idx_works_storage_work_format;not null" json:"file_format"`
	UploadedTime  time.Time  `gorm:"column:uploaded_time;not null" json:"uploaded_time"`
	UpdatedTime   int64      `gorm:"column:updated_time;not null" json:"updated_time"`
	Location      string     `gorm:"column:location;size:255;not null" json:"-"`
	PatchOf       *int64     `gorm:"column:patch_of" json:"patch_of,omitempty"`
	RetrievedFrom string     `gorm:"column:retrieved_from;size:255" json:"retrieved_from"`
	SHA1          string     `gorm:"column:sha1;size:40;not null" json:"sha1"`
	Title         string     `gorm:"column:title;size:500" json:"title,omitempty"`
	Author        string     `gorm:"column:author;size:500" json:"author,omitempty"`
}

// TableName returns the table name for StorageEntry.
func (StorageEntry) TableName() string {
	return "works_storage"
}

// IsHead reports whether this entry currently holds the full blob.
func (e *StorageEntry) IsHead() bool {
	return e.PatchOf == nil
}
