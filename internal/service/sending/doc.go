// Package sending delivers rendered nudges over a channel.
//
// Each channel (email, sms, push) is served by one Deliverer chosen when the
// process is composed. MockDeliverer stands in outside production;
// SESDeliverer sends email through AWS SES v2; GatewayDeliverer posts sms
// and push messages to an HTTP gateway through the retrying transport.
package sending
