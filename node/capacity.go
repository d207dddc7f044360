package node

// MaxHandlers bounds the number of handlers a Registry can hold: the five
// mandatory node services plus four instances each of three driver-specific
// subscriptions. Change it here when a deployment needs a different mix.
const MaxHandlers = 17
