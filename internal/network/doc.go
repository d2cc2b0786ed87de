// Package network joins the device to its network with bounded retry.
//
// A Link is the radio (or host OS) behind the agent. The Connector drives
// a Link through a bounded retry policy: when every attempt fails it says
// so on the console and returns ErrJoinFailed, leaving the main loop to try
// again on its next tick.
//
// Two Link drivers are provided:
//   - HostLink: the operating system manages connectivity; the agent only
//     observes interface state
//   - NmcliLink: NetworkManager joins a WiFi network by SSID and passphrase
package network
