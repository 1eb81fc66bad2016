package webdav

import "encoding/xml"

// WebDAV XML structures, client side of PROPFIND

type Multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []Response `xml:"response"`
}

type Response struct {
	Href      string     `xml:"href"`
	Propstats []Propstat `xml:"propstat"`
	Status    string     `xml:"status"`
}

type Propstat struct {
	Prop   Prop   `xml:"prop"`
	Status string `xml:"status"`
}

type Prop struct {
	DisplayName   string        `xml:"displayname"`
	ResourceType  *ResourceType `xml:"resourcetype"`
	ContentLength string        `xml:"getcontentlength"`
	LastModified  string        `xml:"getlastmodified"`
	ETag          string        `xml:"getetag"`
}

type ResourceType struct {
	Collection *struct{} `xml:"collection"`
}

// IsCollection reports whether any successful propstat marks the
// resource as a collection
func (r Response) IsCollection() bool {
	for _, ps := range r.Propstats {
		if ps.Prop.ResourceType != nil && ps.Prop.ResourceType.Collection != nil {
			return true
		}
	}
	return false
}

type PropFind struct {
	XMLName xml.Name `xml:"DAV: propfind"`
	Prop    PropReq  `xml:"DAV: prop"`
}

type PropReq struct {
	ResourceType  *struct{} `xml:"DAV: resourcetype,omitempty"`
	ContentLength *struct{} `xml:"DAV: getcontentlength,omitempty"`
}

// propfindBody is the request body for every listing: only the
// resource type and size are needed
func propfindBody() ([]byte, error) {
	body, err := xml.Marshal(PropFind{
		Prop: PropReq{
			ResourceType:  &struct{}{},
			ContentLength: &struct{}{},
		},
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
