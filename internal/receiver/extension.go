package receiver

import (
	"encoding/xml"

	"gosrc.io/xmpp/stanza"
)

// nwwsOIExtension is the vendor "x" child element NWWS-OI attaches to
// every groupchat message stanza in the nwws-oi namespace.
type nwwsOIExtension struct {
	XMLName xml.Name `xml:"nwws-oi x"`
	ID      string   `xml:"id,attr"`
	Issue   string   `xml:"issue,attr"`
	TTAAII  string   `xml:"ttaaii,attr"`
	CCCC    string   `xml:"cccc,attr"`
	AwipsID string   `xml:"awipsid,attr"`
	Text    string   `xml:",chardata"`
}

func (nwwsOIExtension) Namespace() string {
	return "nwws-oi"
}

// delayExtension is the XEP-0203 Delayed Delivery child a server
// attaches to a message that was held or replayed, e.g. from the MUC
// history requested at join time. Its stamp lets the receiver measure
// how stale a message already was by the time it arrived.
type delayExtension struct {
	XMLName xml.Name `xml:"urn:xmpp:delay delay"`
	Stamp   string   `xml:"stamp,attr"`
}

func (delayExtension) Namespace() string {
	return "urn:xmpp:delay"
}

func init() {
	stanza.TypeRegistry.MapExtension(stanza.PKTMessage, xml.Name{Space: "nwws-oi", Local: "x"}, nwwsOIExtension{})
	stanza.TypeRegistry.MapExtension(stanza.PKTMessage, xml.Name{Space: "urn:xmpp:delay", Local: "delay"}, delayExtension{})
}
