package reservation

type Status string

// StatusCreated is the only status this service assigns; later states are
// owned by the store-side application.
const StatusCreated Status = "CREATED"
