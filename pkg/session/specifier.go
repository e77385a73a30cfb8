// Package session implements the session dispatch router (component G):
// a symmetric output-session registry keyed by data-specifier and
// destination, and a dense constant-time input dispatch table.
package session

// Role distinguishes which side of a service exchange a ServiceDataSpecifier
// names.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// DataSpecifier is the abstract address of a communication channel: a
// message subject or one side of a service.
type DataSpecifier struct {
	IsService bool
	SubjectID uint16 // message only, 0..8191
	ServiceID uint8  // service only, 0..255
	Role      Role   // service only
}

// MessageDataSpecifier returns the data-specifier for a message subject.
func MessageDataSpecifier(subjectID uint16) DataSpecifier {
	return DataSpecifier{SubjectID: subjectID}
}

// ServiceDataSpecifier returns the data-specifier for one side of a
// service exchange.
func ServiceDataSpecifier(serviceID uint8, role Role) DataSpecifier {
	return DataSpecifier{IsService: true, ServiceID: serviceID, Role: role}
}
