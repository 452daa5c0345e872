package storage

import "time"

// Country is the countries table.
type Country struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"size:100;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// City is the cities table.
type City struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"size:100;uniqueIndex;not null"`
	Population   *int64    `gorm:"default:null"`
	ReferenceURL *string   `gorm:"size:255"`
	CountryID    uint      `gorm:"not null;index"`
	Country      *Country  `gorm:"foreignKey:CountryID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Museum is the museums table.
type Museum struct {
	ID               uint      `gorm:"primaryKey"`
	Name             string    `gorm:"size:150;uniqueIndex;not null"`
	ReferenceURL     *string   `gorm:"size:255"`
	NumberOfVisitors *int64    `gorm:"default:null"`
	CityID           uint      `gorm:"not null;index"`
	City             *City     `gorm:"foreignKey:CityID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// MuseumAttribute is one infobox row of a museum.
type MuseumAttribute struct {
	ID             uint      `gorm:"primaryKey"`
	MuseumID       uint      `gorm:"not null;uniqueIndex:idx_museum_attribute_key"`
	AttributeKey   string    `gorm:"size:255;not null;uniqueIndex:idx_museum_attribute_key"`
	AttributeValue string    `gorm:"type:text"`
	Museum         *Museum   `gorm:"foreignKey:MuseumID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// ImportLogRecord is the import_logs table. Result holds JSON.
type ImportLogRecord struct {
	ID          uint       `gorm:"primaryKey"`
	RunID       string     `gorm:"size:36;uniqueIndex;not null"`
	TriggeredAt time.Time  `gorm:"not null"`
	CompletedAt *time.Time `gorm:"default:null"`
	Status      string     `gorm:"size:20;not null"`
	Result      string     `gorm:"type:text"`
}

// TableName overrides the default import_log_records.
func (ImportLogRecord) TableName() string { return "import_logs" }
