package models

type User struct {
	BaseModel
	Email                 string       `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash          string       `json:"-" gorm:"type:text;not null"`
	IsStaff               bool         `json:"isStaff" gorm:"not null;default:false"`
	ChangePasswordOnLogin bool         `json:"changePasswordOnLogin" gorm:"not null;default:false"`
	Sessions              []Session    `json:"-" gorm:"foreignKey:UserID"`
	Files                 []FileUpload `json:"-" gorm:"foreignKey:OwnerID"`
}
