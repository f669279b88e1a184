package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

// Free plan limits enforced at publish/settings time.
const (
	FreePlanMaxPublishedEvents = 3
	FreePlanMaxCapacity        = 100
	ProPlanMaxCapacity         = 10000
)

type Community struct {
	bun.BaseModel `bun:"table:communities"`

	ID                   string    `bun:"id,pk" json:"id"`
	Slug                 string    `bun:"slug,unique,notnull" json:"slug"`
	Name                 string    `bun:"name,notnull" json:"name"`
	Description          string    `bun:"description,nullzero" json:"description,omitempty"`
	Plan                 string    `bun:"plan,notnull" json:"plan"`
	StripeCustomerID     string    `bun:"stripe_customer_id,nullzero" json:"-"`
	StripeSubscriptionID string    `bun:"stripe_subscription_id,nullzero" json:"-"`
	CreatedAt            time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// MaxCapacity returns the per-event capacity ceiling for the community's plan.
func (c *Community) MaxCapacity() int {
	if c.Plan == PlanPro {
		return ProPlanMaxCapacity
	}
	return FreePlanMaxCapacity
}

type CommunityAdmin struct {
	bun.BaseModel `bun:"table:community_admins"`

	ID          string    `bun:"id,pk" json:"id"`
	CommunityID string    `bun:"community_id,notnull" json:"community_id"`
	UserID      string    `bun:"user_id,notnull" json:"user_id"`
	Role        string    `bun:"role,notnull" json:"role"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`

	Community *Community `bun:"rel:belongs-to,join:community_id=id" json:"-"`
	User      *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
}
