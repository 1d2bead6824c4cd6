// Package validator applies small composable rules and collects every
// violation into a field-level ValidationErrors list.
//
//	err := validator.Apply(
//		validator.Required("userId", req.UserID),
//		validator.MaxLen("userId", req.UserID, 256),
//		validator.When(req.EventID != "", validator.ValidUUID("eventId", req.EventID)),
//	)
//	if ve := validator.ExtractValidationErrors(err); ve != nil {
//		// ve.Fields() is suitable for an API error body
//	}
package validator
