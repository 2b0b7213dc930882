package models

import "time"

// User is an account known to the directory. Role is mandatory.
type User struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255"`
	Email     string `gorm:"size:255"`
	Role      string `gorm:"size:16;not null"`
	Active    bool   `gorm:"not null"`
	CreatedAt time.Time
}

// Team groups technicians that can share work orders.
type Team struct {
	ID   string `gorm:"primaryKey;size:64"`
	Name string `gorm:"size:255"`

	Members []TeamMember `gorm:"foreignKey:TeamID"`
}

// TeamMember links a user to a team.
type TeamMember struct {
	TeamID string `gorm:"primaryKey;size:64"`
	UserID string `gorm:"primaryKey;size:64;index"`
}

// Asset is a piece of equipment maintained by work orders.
type Asset struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255;not null"`
	Category  string `gorm:"size:64;index"`
	Status    string `gorm:"size:20;default:in_service"`
	Location  string `gorm:"size:255"`
	CreatedAt time.Time
}
