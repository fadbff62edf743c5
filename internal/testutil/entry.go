package testutil

import (
	"time"

	"qcsync/internal/qc"
)

// NewEntry returns a valid entry for the given delivery and product,
// stamped at the given time.
func NewEntry(farmerDeliveryID, productID string, at time.Time) qc.Entry {
	return qc.Draft{
		FarmerDeliveryID: farmerDeliveryID,
		ProductID:        productID,
		AcceptedQuantity: 18,
		RejectedQuantity: 2,
		RejectionReasons: []string{"size_inconsistency"},
	}.Stamp(at)
}
