package resource

import (
	"context"
	"fmt"

	"github.com/AmbeyiBrian/HomeManager-sub002/internal/api"
)

// Cache keys for the per-resource collection caches. Detail entries use
// the <resource>_detail_<id> convention.
const (
	KeyProperties    = "properties_data"
	KeyUnits         = "units_data"
	KeyTenants       = "tenants_data"
	KeyTickets       = "tickets_data"
	KeyPayments      = "payments_data"
	KeyNotices       = "notices_data"
	KeyRoles         = "roles_data"
	KeyMemberships   = "memberships_data"
	KeySubscriptions = "subscriptions_data"
)

// CleanupKeys is the fixed list of resource caches cleared on logout.
var CleanupKeys = []string{
	KeyProperties,
	KeyUnits,
	KeyTenants,
	KeyTickets,
	KeyPayments,
}

// Property is a residential or commercial property.
type Property struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	PropertyType string `json:"property_type"`
	Organization int    `json:"organization,omitempty"`
	TotalUnits   int    `json:"total_units,omitempty"`
	Units        []Unit `json:"units,omitempty"`
}

// Unit is a rentable unit within a property.
type Unit struct {
	ID              int    `json:"id"`
	Property        int    `json:"property"`
	UnitNumber      string `json:"unit_number"`
	UnitType        string `json:"unit_type,omitempty"`
	Floor           string `json:"floor,omitempty"`
	Bedrooms        int    `json:"bedrooms,omitempty"`
	MonthlyRent     string `json:"monthly_rent"`
	SecurityDeposit string `json:"security_deposit,omitempty"`
	IsOccupied      bool   `json:"is_occupied"`
}

// Tenant is a person renting a unit.
type Tenant struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email,omitempty"`
	Unit        int    `json:"unit,omitempty"`
	MoveInDate  string `json:"move_in_date,omitempty"`
}

// Ticket is a maintenance request.
type Ticket struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Priority    string `json:"priority,omitempty"`
	Unit        int    `json:"unit,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Payment is a rent payment record.
type Payment struct {
	ID          int    `json:"id"`
	Unit        int    `json:"unit"`
	Tenant      int    `json:"tenant"`
	Amount      string `json:"amount"`
	PaymentDate string `json:"payment_date,omitempty"`
	Status      string `json:"status"`
	Method      string `json:"payment_method,omitempty"`
}

// Notice is an announcement sent to tenants.
type Notice struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content,omitempty"`
	NoticeType string `json:"notice_type,omitempty"`
	Property   int    `json:"property,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// Role is an organization role definition.
type Role struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Membership links a user to an organization with a role.
type Membership struct {
	ID           int    `json:"id"`
	User         int    `json:"user"`
	Organization int    `json:"organization"`
	Role         int    `json:"role"`
	Status       string `json:"status,omitempty"`
}

// Subscription is an organization's billing subscription.
type Subscription struct {
	ID           int    `json:"id"`
	Organization int    `json:"organization"`
	Plan         string `json:"plan"`
	Status       string `json:"status"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

// Offline action types replayed by the queue.
const (
	ActionCreateProperty = "create_property"
	ActionCreateUnit     = "create_unit"
	ActionCreateTenant   = "create_tenant"
	ActionCreateTicket   = "create_ticket"
	ActionCreatePayment  = "create_payment"
	ActionCreateNotice   = "create_notice"
	ActionAssignRole     = "assign_role"
)

// Properties fetches the property list.
func (e *Engine) Properties(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Property] {
	return list[Property](ctx, e, "properties", KeyProperties, "/properties/properties/", forceRefresh, opts)
}

// PropertyDetail fetches one property with its units.
func (e *Engine) PropertyDetail(ctx context.Context, id int, forceRefresh bool) Result[Property] {
	key := fmt.Sprintf("property_detail_%d", id)
	return detail[Property](ctx, e, "property_detail", key, fmt.Sprintf("/properties/properties/%d/", id), forceRefresh)
}

// Units fetches the unit list.
func (e *Engine) Units(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Unit] {
	return list[Unit](ctx, e, "units", KeyUnits, "/properties/units/", forceRefresh, opts)
}

// UnitDetail fetches one unit.
func (e *Engine) UnitDetail(ctx context.Context, id int, forceRefresh bool) Result[Unit] {
	key := fmt.Sprintf("unit_detail_%d", id)
	return detail[Unit](ctx, e, "unit_detail", key, fmt.Sprintf("/properties/units/%d/", id), forceRefresh)
}

// Tenants fetches the tenant list.
func (e *Engine) Tenants(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Tenant] {
	return list[Tenant](ctx, e, "tenants", KeyTenants, "/tenants/tenants/", forceRefresh, opts)
}

// Tickets fetches the maintenance ticket list.
func (e *Engine) Tickets(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Ticket] {
	return list[Ticket](ctx, e, "tickets", KeyTickets, "/maintenance/tickets/", forceRefresh, opts)
}

// Payments fetches the payment list.
func (e *Engine) Payments(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Payment] {
	return list[Payment](ctx, e, "payments", KeyPayments, "/payments/rent/", forceRefresh, opts)
}

// Notices fetches the notice list.
func (e *Engine) Notices(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Notice] {
	return list[Notice](ctx, e, "notices", KeyNotices, "/notices/notices/", forceRefresh, opts)
}

// Roles fetches the organization's role list.
func (e *Engine) Roles(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Role] {
	return list[Role](ctx, e, "roles", KeyRoles, "/organizations/roles/", forceRefresh, opts)
}

// Memberships fetches the organization's membership list.
func (e *Engine) Memberships(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Membership] {
	return list[Membership](ctx, e, "memberships", KeyMemberships, "/organizations/memberships/", forceRefresh, opts)
}

// Subscriptions fetches the organization's subscriptions.
func (e *Engine) Subscriptions(ctx context.Context, forceRefresh bool, opts api.ListOptions) Result[[]Subscription] {
	return list[Subscription](ctx, e, "subscriptions", KeySubscriptions, "/organizations/subscriptions/", forceRefresh, opts)
}

// CreateProperty creates a property, deferring to the queue while offline.
func (e *Engine) CreateProperty(ctx context.Context, payload any) Result[RawResult] {
	return e.post(ctx, ActionCreateProperty, "/properties/properties/", payload)
}

// CreateUnit creates a unit.
func (e *Engine) CreateUnit(ctx context.Context, payload any) Result[RawResult] {
	return e.post(ctx, ActionCreateUnit, "/properties/units/", payload)
}

// CreateTenant creates a tenant.
func (e *Engine) CreateTenant(ctx context.Context, payload any) Result[RawResult] {
	return e.post(ctx, ActionCreateTenant, "/tenants/tenants/", payload)
}

// CreateTicket creates a maintenance ticket.
func (e *Engine) CreateTicket(ctx context.Context, payload any) Result[RawResult] {
	return e.post(ctx, ActionCreateTicket, "/maintenance/tickets/", payload)
}

// CreatePayment records a rent payment.
func (e *Engine) CreatePayment(ctx context.Context, payload any) Result[RawResult] {
	return e.post(ctx, ActionCreatePayment, "/payments/rent/", payload)
}

// CreateNotice creates a notice.
func (e *Engine) CreateNotice(ctx context.Context, payload any) Result[RawResult] {
	return e.post(ctx, ActionCreateNotice, "/notices/notices/", payload)
}

// AssignRole creates a membership with a role.
func (e *Engine) AssignRole(ctx context.Context, payload any) Result[RawResult] {
	return e.post(ctx, ActionAssignRole, "/organizations/memberships/", payload)
}

// RegisterReplayHandlers installs the default replay handlers: each
// queued action type is re-posted to its endpoint when the queue drains.
func (e *Engine) RegisterReplayHandlers() {
	endpoints := map[string]string{
		ActionCreateProperty: "/properties/properties/",
		ActionCreateUnit:     "/properties/units/",
		ActionCreateTenant:   "/tenants/tenants/",
		ActionCreateTicket:   "/maintenance/tickets/",
		ActionCreatePayment:  "/payments/rent/",
		ActionCreateNotice:   "/notices/notices/",
		ActionAssignRole:     "/organizations/memberships/",
	}
	for actionType, path := range endpoints {
		path := path
		e.Queue.Register(actionType, func(ctx context.Context, payload RawResult) error {
			return e.Client.DoJSON(ctx, "POST", path, nil, payload, nil)
		})
	}
}
