package models

import "time"

// Branch is a physical location of a company
type Branch struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Phone     string     `json:"phone,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Patient is a person registered at a clinic
type Patient struct {
	ID        string     `json:"id"`
	FullName  string     `json:"full_name"`
	Phone     string     `json:"phone"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	Address   string     `json:"address,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Allergies []string   `json:"allergies,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Doctor is a practitioner working at a branch
type Doctor struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id,omitempty"`
	BranchID       string     `json:"branch_id"`
	FullName       string     `json:"full_name"`
	Specialty      string     `json:"specialty"`
	RoomNumber     string     `json:"room_number,omitempty"`
	ConsultFeeCent int64      `json:"consult_fee_cents"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Service is a billable medical service
type Service struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PriceCent int64     `json:"price_cents"`
	Duration  int       `json:"duration_minutes"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueueStatus represents the state of an appointment in the queue
type QueueStatus string

const (
	QueueBooked    QueueStatus = "BOOKED"
	QueueCalled    QueueStatus = "CALLED"
	QueueInService QueueStatus = "IN_SERVICE"
	QueueCompleted QueueStatus = "COMPLETED"
	QueueCanceled  QueueStatus = "CANCELED"
	QueueNoShow    QueueStatus = "NO_SHOW"
)

// Queue is an appointment slot in a doctor's queue
type Queue struct {
	ID          string      `json:"id"`
	PatientID   string      `json:"patient_id"`
	DoctorID    string      `json:"doctor_id"`
	BranchID    string      `json:"branch_id"`
	ServiceID   string      `json:"service_id,omitempty"`
	Number      int         `json:"number"`
	Status      QueueStatus `json:"status"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	CalledAt    *time.Time  `json:"called_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
}

// PaymentStatus represents the settlement state of a payment
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
	PaymentFailed   PaymentStatus = "FAILED"
)

// Payment is a payment collected for a queue entry
type Payment struct {
	ID          string        `json:"id"`
	QueueID     string        `json:"queue_id"`
	AmountCent  int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Method      string        `json:"method"`
	Status      PaymentStatus `json:"status"`
	ProviderRef string        `json:"provider_ref,omitempty"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Drug is a stock item in a clinic pharmacy
type Drug struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Unit      string     `json:"unit"`
	Stock     int        `json:"stock"`
	PriceCent int64      `json:"price_cents"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Setting is a tenant key/value configuration record. Settings are not part
// of the audit trail.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
