package filedb

import "encoding/xml"

// These types mirror the XML definition file. Values stay strings so that
// a broken number only rejects its own entry.

type xmlDatabase struct {
	XMLName xml.Name  `xml:"mcfiledb"`
	Format  string    `xml:"format,attr"`
	Games   []xmlGame `xml:"game"`
}

type xmlGame struct {
	Name     string    `xml:"name"`
	GameCode string    `xml:"gamecode"`
	Company  string    `xml:"company"`
	Files    []xmlFile `xml:"file"`
}

type xmlFile struct {
	Info      string        `xml:"info"`
	Search    xmlSearch     `xml:"search"`
	DirEntry  xmlDirEntry   `xml:"dirEntry"`
	Checksums []xmlChecksum `xml:"checksum"`
}

type xmlSearch struct {
	Address  string `xml:"address"`
	GameDesc string `xml:"gameDesc"`
	FileDesc string `xml:"fileDesc"`
}

type xmlDirEntry struct {
	Filename     string `xml:"filename"`
	BannerFormat string `xml:"bannerFormat"`
	IconAddress  string `xml:"iconAddress"`
	IconFormat   string `xml:"iconFormat"`
	IconSpeed    string `xml:"iconSpeed"`
	Permission   string `xml:"permission"`
	Length       string `xml:"length"`
}

type xmlChecksum struct {
	Algorithm string `xml:"algorithm,attr"`
	Start     string `xml:"start,attr"`
	Length    string `xml:"length,attr"`
	Address   string `xml:"address,attr"`
	Endian    string `xml:"endian,attr"`
	Poly      string `xml:"poly,attr"`
	Init      string `xml:"init,attr"`
}
