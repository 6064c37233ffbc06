package kernel

// AccountID identifies an end-user account.
type AccountID string

func NewAccountID(id string) AccountID { return AccountID(id) }
func (a AccountID) String() string     { return string(a) }
func (a AccountID) IsEmpty() bool      { return string(a) == "" }

// AppID identifies a registered client application (tenant).
type AppID string

func NewAppID(id string) AppID { return AppID(id) }
func (a AppID) String() string { return string(a) }
func (a AppID) IsEmpty() bool  { return string(a) == "" }
