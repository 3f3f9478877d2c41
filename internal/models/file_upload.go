package models

import (
	"time"

	"github.com/google/uuid"
)

// FileUpload is the metadata record for one uploaded file. The bytes
// live in the blob store under StoragePath; the public handle is
// FileHex, never the numeric row identity.
type FileUpload struct {
	BaseModel
	OwnerID     *uuid.UUID `json:"ownerID,omitempty" gorm:"type:uuid;index"`
	Filename    string     `json:"filename" gorm:"type:varchar(255);not null"`
	MimeType    string     `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size        int64      `json:"size" gorm:"not null;default:0"`
	UploadedAt  time.Time  `json:"uploadedAt" gorm:"not null"`
	ExpiresAt   time.Time  `json:"expiresAt" gorm:"not null;index"`
	FileHex     string     `json:"fileHex" gorm:"type:varchar(32);uniqueIndex;not null"`
	StoragePath string     `json:"-" gorm:"type:text;not null"`

	// Owner degrades to null when the owning user is removed, so the
	// public link keeps working.
	Owner *User `json:"owner,omitempty" gorm:"foreignKey:OwnerID;references:ID;constraint:OnDelete:SET NULL"`
}

func (FileUpload) TableName() string {
	return "file_uploads"
}

func (f *FileUpload) IsExpired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}
