package model

import "time"

type CampaignStatus string

const (
	StatusActive    CampaignStatus = "active"
	StatusCompleted CampaignStatus = "completed"
	StatusExpired   CampaignStatus = "expired"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// Campaign 团购活动
type Campaign struct {
	ID                  ID             `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID           ID             `gorm:"not null;index" json:"productId"`
	CreatorID           ID             `gorm:"not null;index" json:"creatorId"`
	MaxParticipants     int            `gorm:"column:max_users;not null" json:"maxUsers"`
	CurrentParticipants int            `gorm:"column:current_users;not null;default:1" json:"currentUsers"`
	DiscountPercent     int            `gorm:"column:discount_percentage;not null" json:"discountPercentage"`
	Status              CampaignStatus `gorm:"type:varchar(16);not null;default:active;index:idx_status_expires" json:"status"`
	ExpiresAt           time.Time      `gorm:"not null;index:idx_status_expires" json:"expiresAt"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"-"`
}

func (Campaign) TableName() string {
	return "group_buys"
}

// IsOpen reports whether the campaign still accepts joins at now.
func (c *Campaign) IsOpen(now time.Time) bool {
	return c.Status == StatusActive && c.ExpiresAt.After(now) && c.CurrentParticipants < c.MaxParticipants
}

// Participant 团购参与者, one row per (campaign, user)
type Participant struct {
	ID            ID            `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID    ID            `gorm:"column:group_buy_id;not null;uniqueIndex:uni_group_buy_user" json:"groupBuyId"`
	UserID        ID            `gorm:"not null;uniqueIndex:uni_group_buy_user;index" json:"userId"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(16);not null;default:pending" json:"paymentStatus"`
	JoinedAt      time.Time     `gorm:"not null" json:"joinedAt"`
}

func (Participant) TableName() string {
	return "group_buy_participants"
}

// ActiveCampaign is a listing row with the server computed countdown.
type ActiveCampaign struct {
	Campaign
	TimeLeft string `json:"timeLeft"`
}

// UserCampaign is one campaign a user takes part in, joined with its product.
type UserCampaign struct {
	GroupBuyID         ID             `json:"groupBuyId"`
	ProductID          ID             `json:"productId"`
	Status             CampaignStatus `json:"status"`
	ExpiresAt          time.Time      `json:"expiresAt"`
	JoinedAt           time.Time      `json:"joinedAt"`
	PaymentStatus      PaymentStatus  `json:"paymentStatus"`
	ProductName        string         `json:"productName"`
	ProductImage       string         `json:"productImage"`
	CurrentUsers       int            `json:"currentUsers"`
	MaxUsers           int            `json:"maxUsers"`
	DiscountPercentage int            `json:"discountPercentage"`
}
