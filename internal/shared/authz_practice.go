package shared

// Practice permissions: lawyers, clients, cases and documents.
const (
	// Lawyer permissions
	PermCreateLawyer = "create_lawyer"
	PermReadLawyer   = "read_lawyer"
	PermUpdateLawyer = "update_lawyer"
	PermDeleteLawyer = "delete_lawyer"

	// Client permissions
	PermCreateClient = "create_client"
	PermReadClient   = "read_client"
	PermUpdateClient = "update_client"
	PermDeleteClient = "delete_client"

	// Case permissions
	PermCreateCase       = "create_case"
	PermReadCase         = "read_case"
	PermUpdateCase       = "update_case"
	PermDeleteCase       = "delete_case"
	PermViewCaseStatus   = "view_case_status"
	PermUpdateCaseStatus = "update_case_status"

	// Document permissions
	PermUploadDocument = "upload_document"
	PermReadDocument   = "read_document"
	PermDeleteDocument = "delete_document"
)

// PracticeScopes lists all permissions related to practice management.
func PracticeScopes() []string {
	return []string{
		PermCreateLawyer,
		PermReadLawyer,
		PermUpdateLawyer,
		PermDeleteLawyer,
		PermCreateClient,
		PermReadClient,
		PermUpdateClient,
		PermDeleteClient,
		PermCreateCase,
		PermReadCase,
		PermUpdateCase,
		PermDeleteCase,
		PermViewCaseStatus,
		PermUpdateCaseStatus,
		PermUploadDocument,
		PermReadDocument,
		PermDeleteDocument,
	}
}
