// Package secureelement provides the device's TLS client identity.
//
// On the reference hardware the private key lives in a crypto chip slot and
// never leaves it; the TLS stack only asks the chip to sign. This package
// keeps that contract: keys are addressed by slot number and handed out as
// crypto.Signer values, never as raw key material.
//
// FileElement backs the slots with a directory of PEM files named
// slot0.pem, slot1.pem, ... A missing directory means the element is not
// present, which is fatal at startup: without it the device has no identity.
//
// Usage:
//
//	element, err := secureelement.Open(cfg.SecureElement.Path)
//	if errors.Is(err, secureelement.ErrNotPresent) {
//	    // halt
//	}
//	signer, err := element.Signer(cfg.SecureElement.Slot)
//	cert, err := secureelement.ClientCertificate(signer, certPEM)
package secureelement
