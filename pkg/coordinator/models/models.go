// Package models defines the persisted entities of the coordinator and the
// domain error values shared across its subsystems.
package models

// VersionInfo carries the schema version that drives migrations.
type VersionInfo struct {
	Version int `gorm:"column:version;primaryKey"`
}

// TableName returns the table name for VersionInfo.
func (VersionInfo) TableName() string {
	return "version_info"
}

// BaseModels returns the models that make up the v1 schema.
func BaseModels() []any {
	return []any{
		&Job{},
		&Dispatch{},
		&StorageEntry{},
		&ObjectStoreEntry{},
		&ObjectIndexEntry{},
		&ObjectIDAlloc{},
	}
}

// V2Models returns the models added by the v1→v2 migration.
func V2Models() []any {
	return []any{
		&UnfetchedObject{},
		&ObjectDispatch{},
		&DuplicateObjectMapping{},
		&VersionInfo{},
	}
}

// AllModels returns every persisted model, for full-schema migration.
func AllModels() []any {
	return append(BaseModels(), V2Models()...)
}
