package audit

import (
	"reflect"

	"github.com/platinummonkey/clinicq/pkg/models"
)

// Classify maps an entity to its item type. It reports false for nil values,
// entity types outside the tracked set, and audit entries themselves.
// Both the value and the pointer form of an entity are accepted.
func Classify(entity any) (ItemType, bool) {
	if isNil(entity) {
		return "", false
	}

	switch entity.(type) {
	case models.User, *models.User:
		return ItemTypeUser, true
	case models.Company, *models.Company:
		return ItemTypeCompany, true
	case models.Subscription, *models.Subscription:
		return ItemTypeSubscription, true

	case models.Branch, *models.Branch:
		return ItemTypeBranch, true
	case models.Patient, *models.Patient:
		return ItemTypePatient, true
	case models.Doctor, *models.Doctor:
		return ItemTypeDoctor, true
	case models.Service, *models.Service:
		return ItemTypeService, true
	case models.Queue, *models.Queue:
		return ItemTypeQueue, true
	case models.Payment, *models.Payment:
		return ItemTypePayment, true
	case models.Drug, *models.Drug:
		return ItemTypeDrug, true

	// never audit the audit trail
	case LogEntry, *LogEntry:
		return "", false
	default:
		return "", false
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
