// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package detectionhistory decodes the DetectionHistory files that Windows
// Defender writes below ProgramData/Microsoft/Windows Defender/Scans/History
// whenever it detects, quarantines or remediates a threat. The files are
// named after a GUID, carry no extension and use an undocumented binary
// layout that was reverse engineered from real artifacts.
//
// The DetectionHistory format
//
// A DetectionHistory file implements the following conventions:
//     - The file starts with the magic bytes 08 00 00 00 08 00 and carries its own GUID at offset 24 in the mixed endian Windows layout.
//     - Field data begins at offset 48 and falls into three sections: MagicVersion, General and a trailer near end of file.
//     - Text is windows-1252 in a wide spacing, one character per 2-byte chunk.
//     - MagicVersion fields are delimited by a colon marker, the other sections use runs of zero bytes.
//     - Time fields are 64 bit FILETIME tick counts, ThreatTracking fields use an opaque length encoding with caution bytes.
//     - The trailer fields User, SpawningProcessName and SecurityGroup are positional, their names never appear in the file.
//
// Decoded records keep the field order of the file:
//     {
//         "GUID": "6cfe27e4-6183-47ee-9a3b-ceb4e714a9fb",
//         "Magic.Version": "1.2",
//         "ThreatName": "Trojan:Win32/Foo",
//         "ThreatTrackingStartTime": "01-15-2021 10:12:44",
//         "User": "DESKTOP-1\\user"
//     }
//
// Besides single file decoding the package discovers artifacts on disk,
// writes them out as JSON, and can collect them in a sqlite detection store
// for queries across many artifacts.
package detectionhistory
